//go:build !js_eval

package settings

// NewJSEvaluator returns nil unless the binary is built with -tags js_eval,
// which links the goja engine. Callers pick another engine on nil.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyEngineOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
