package dto

// AutoLinkResult summarises one auto-link pass over unlinked payments.
type AutoLinkResult struct {
	Scanned   int               `json:"scanned"`
	Linked    int               `json:"linked"`
	Unmatched int               `json:"unmatched"`
	Ambiguous int               `json:"ambiguous"`
	Failed    int               `json:"failed"`
	Links     map[string]string `json:"links"`
}
