package masking

// Masker is a structural masker: it parses the payload instead of matching it
// with a regex, so it can redact by field name.
type Masker interface {
	// Name must match a key in config.GetBuiltinConfig().CodeMaskers.
	Name() string

	// AppliesTo is a cheap pre-check (substring tests, no parsing).
	AppliesTo(data string) bool

	// Mask returns the masked payload, or data unchanged when it cannot be parsed.
	Mask(data string) string
}
