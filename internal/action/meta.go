package action

// PlanMeta records the provenance of one planner call.
type PlanMeta struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Retries   int    `json:"retries"`
	ParseOK   bool   `json:"parse_ok"`
	RawLength int    `json:"raw_length"`
	Fallback  bool   `json:"fallback"`
}
