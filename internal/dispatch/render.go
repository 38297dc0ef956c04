package dispatch

import "strings"

// DefaultTemplate is used when a business has configured neither a template
// row nor a settings override.
const DefaultTemplate = "Merhaba {firstName}, bizimle deneyiminizi değerlendirmek ister misiniz? {reviewUrl}"

// Render fills {firstName} and {reviewUrl} in a template body. The first
// whitespace-delimited token of the recipient's name becomes {firstName}.
// Unknown placeholders are left verbatim; an empty destination URL still
// renders (refusing to dispatch without one is the engine's job, not the
// renderer's).
func Render(template, recipientName, destinationURL string) string {
	firstName := ""
	if fields := strings.Fields(recipientName); len(fields) > 0 {
		firstName = fields[0]
	}

	out := strings.ReplaceAll(template, "{firstName}", firstName)
	return strings.ReplaceAll(out, "{reviewUrl}", destinationURL)
}
