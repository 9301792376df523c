package face

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/phajek/mediascan/internal/media"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a person label for comparison (lowercase,
// no diacritics, dashes to spaces) so "jan-novak" matches "Jan Novák".
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// FilterByPerson returns the faces whose person label matches name under
// normalization, so "jan-novak" finds faces labeled "Jan Novák".
func FilterByPerson(faces []media.FaceRecord, name string) []media.FaceRecord {
	want := NormalizePersonName(name)
	if want == "" {
		return nil
	}

	var matched []media.FaceRecord
	for _, f := range faces {
		if f.PersonID != "" && NormalizePersonName(f.PersonID) == want {
			matched = append(matched, f)
		}
	}
	return matched
}
