package http

import (
	nethttp "net/http"

	"go-fraud-visuals-ui/internal/viz"
)

func chartSettingsHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"data": map[string]any{
			"fraud_threshold":  viz.FraudThreshold,
			"max_samples":      viz.MaxSamples,
			"width":            viz.Width,
			"height":           viz.Height,
			"padding":          viz.Padding,
			"chart_types":      viz.ChartTypes,
			"fallback_values":  viz.FallbackValues,
			"max_fields_shown": viz.MaxFieldsShown,
		},
	})
}
