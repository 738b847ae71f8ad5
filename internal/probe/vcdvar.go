package probe

// VcdVar is one `$var` declaration from a VCD header: a short code,
// its dotted hierarchical name, and its bit width.
type VcdVar struct {
	Code  string
	Name  string
	Width int
}
