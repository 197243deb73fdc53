package executors

import (
	"context"
	"fmt"
)

// pricesFromConfig reads a numeric "prices" array out of node config,
// coercing the loosely-typed JSON numbers (float64 after unmarshalling)
// into a plain []float64 for the indicator math.
func pricesFromConfig(config map[string]interface{}) ([]float64, error) {
	raw, ok := config["prices"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("prices array is required")
	}
	prices := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("prices[%d] is not numeric", i)
		}
		prices[i] = f
	}
	return prices, nil
}

func periodFromConfig(config map[string]interface{}, defaultPeriod int) int {
	if p, ok := config["period"].(float64); ok && p > 0 {
		return int(p)
	}
	return defaultPeriod
}

// SMAExecutor computes the simple moving average over the trailing period.
type SMAExecutor struct{}

func NewSMAExecutor() *SMAExecutor { return &SMAExecutor{} }

func (e *SMAExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	prices, err := pricesFromConfig(execCtx.NodeConfig)
	if err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}, nil
	}
	period := periodFromConfig(execCtx.NodeConfig, 14)
	if len(prices) < period {
		return &ExecutionResult{Success: false, Error: "not enough prices for requested period"}, nil
	}

	values := make([]float64, 0, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		values = append(values, sum/float64(period))
	}

	return &ExecutionResult{Success: true, Output: map[string]interface{}{
		"indicator": "SMA", "period": period, "values": toInterfaceSlice(values),
	}}, nil
}

// EMAExecutor computes the exponential moving average over the trailing
// period using the standard smoothing factor 2/(period+1), seeded with the
// first period's SMA.
type EMAExecutor struct{}

func NewEMAExecutor() *EMAExecutor { return &EMAExecutor{} }

func (e *EMAExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	prices, err := pricesFromConfig(execCtx.NodeConfig)
	if err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}, nil
	}
	period := periodFromConfig(execCtx.NodeConfig, 14)
	if len(prices) < period {
		return &ExecutionResult{Success: false, Error: "not enough prices for requested period"}, nil
	}

	multiplier := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	values := []float64{ema}
	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		values = append(values, ema)
	}

	return &ExecutionResult{Success: true, Output: map[string]interface{}{
		"indicator": "EMA", "period": period, "values": toInterfaceSlice(values),
	}}, nil
}

// RSIExecutor computes the relative strength index over the trailing
// period using Wilder's smoothing method.
type RSIExecutor struct{}

func NewRSIExecutor() *RSIExecutor { return &RSIExecutor{} }

func (e *RSIExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	prices, err := pricesFromConfig(execCtx.NodeConfig)
	if err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}, nil
	}
	period := periodFromConfig(execCtx.NodeConfig, 14)
	if len(prices) < period+1 {
		return &ExecutionResult{Success: false, Error: "not enough prices for requested period"}, nil
	}

	gainSum, lossSum := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	values := []float64{rsiFromAverages(avgGain, avgLoss)}
	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values = append(values, rsiFromAverages(avgGain, avgLoss))
	}

	return &ExecutionResult{Success: true, Output: map[string]interface{}{
		"indicator": "RSI", "period": period, "values": toInterfaceSlice(values),
	}}, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func toInterfaceSlice(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
