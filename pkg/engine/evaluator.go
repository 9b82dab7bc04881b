package engine

// Evaluator is an Engine used for evaluation rather than training. It behaves
// exactly like an Engine; the distinction only documents intent.
type Evaluator = Engine

// NewEvaluator creates an engine whose Role is RoleEvaluator.
func NewEvaluator(model Model, source DataSource, opts ...Option) (*Evaluator, error) {
	return newEngine(RoleEvaluator, model, source, opts...)
}
