package voice

// MergeContext folds update into sessionContext (mutating it) and returns the
// effective parameters for this turn: the merged context overlaid by params.
// Keys are never removed.
func MergeContext(sessionContext, update, params map[string]string) map[string]string {
	for k, v := range update {
		sessionContext[k] = v
	}
	effective := make(map[string]string, len(sessionContext)+len(params))
	for k, v := range sessionContext {
		effective[k] = v
	}
	for k, v := range params {
		effective[k] = v
	}
	return effective
}
