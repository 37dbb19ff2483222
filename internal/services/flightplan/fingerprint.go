package flightplan

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/groupflight/flightgroup/internal/model"
)

// CoordinatePrecision is the number of decimals kept from each coordinate
// before hashing. Differences past this digit do not change a fingerprint.
const CoordinatePrecision = 5

// fingerprint state is kept to 24 bits, matching deployed clients
const foldMask = 0xffffff

// Fingerprint returns the desync checksum of a waypoint document. Waypoints
// are visited in ascending id order so the result does not depend on map
// iteration. It is not collision resistant.
func Fingerprint(doc model.Document) string {
	var b strings.Builder
	b.WriteString("Plan")
	for _, id := range doc.SortedIDs() {
		wp := doc[id]
		b.WriteString(string(wp.ID))
		b.WriteString(wp.Name)
		b.WriteString(wp.Icon)
		b.WriteString(wp.Color)
		if wp.Optional {
			b.WriteByte('O')
		} else {
			b.WriteByte('X')
		}
		for _, p := range wp.Geo {
			b.WriteString(formatCoordinate(p.Lat()))
			b.WriteString(formatCoordinate(p.Lng()))
		}
	}
	return fold(b.String())
}

// ProfileFingerprint returns the checksum of a pilot's public profile
func ProfileFingerprint(p *model.Pilot) string {
	return fold("Meta" + p.Name + string(p.ID) + p.AvatarHash + p.Tier)
}

// fold hashes UTF-16 code units with hash = hash*31 + unit
func fold(s string) string {
	var hash uint32
	for _, unit := range utf16.Encode([]rune(s)) {
		hash = (hash*31 + uint32(unit)) & foldMask
	}
	return strconv.FormatUint(uint64(hash), 16)
}

var (
	coordinateScale = new(big.Float).SetInt64(100000) // 10^CoordinatePrecision
	half            = big.NewFloat(0.5)
)

// formatCoordinate renders v with CoordinatePrecision decimals the way
// Number.prototype.toFixed does: the sign is taken off first, the exact
// binary value is rounded, and exact ties go to the larger magnitude.
// Tiny negatives keep their sign ("-0.00000").
func formatCoordinate(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	scaled := new(big.Float).SetPrec(128).SetFloat64(v)
	scaled.Mul(scaled, coordinateScale)
	n, _ := scaled.Int(nil)
	rest := new(big.Float).SetPrec(128).Sub(scaled, new(big.Float).SetInt(n))
	if rest.Cmp(half) >= 0 {
		n.Add(n, big.NewInt(1))
	}

	digits := n.String()
	if len(digits) <= CoordinatePrecision {
		digits = strings.Repeat("0", CoordinatePrecision+1-len(digits)) + digits
	}
	cut := len(digits) - CoordinatePrecision
	return sign + digits[:cut] + "." + digits[cut:]
}
