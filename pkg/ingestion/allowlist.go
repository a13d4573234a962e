package ingestion

// Allowlist is an exact, case-sensitive alertname filter. An empty
// allowlist (the zero value) allows everything — the allowlist is opt-in,
// per spec: only a configured non-empty list drops anything.
type Allowlist map[string]bool

// NewAllowlist builds an Allowlist from a slice of alertnames (e.g. from
// config.Config.AlertnameAllowlist).
func NewAllowlist(names []string) Allowlist {
	if len(names) == 0 {
		return nil
	}
	a := make(Allowlist, len(names))
	for _, n := range names {
		a[n] = true
	}
	return a
}

// Permits reports whether alertname may proceed. A nil/empty Allowlist
// permits everything.
func (a Allowlist) Permits(alertname string) bool {
	if len(a) == 0 {
		return true
	}
	return a[alertname]
}
