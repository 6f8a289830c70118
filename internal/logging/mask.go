package logging

// MaskPAN keeps the BIN and the last four digits of a PAN.
func MaskPAN(pan string) string {
	return MaskPartial(pan, 6, 4, '*')
}

// MaskPartial replaces everything except the first keepPrefix and the last
// keepSuffix characters with maskChar. Strings too short to mask are returned
// unchanged.
func MaskPartial(s string, keepPrefix, keepSuffix int, maskChar rune) string {
	runes := []rune(s)
	if len(runes) <= keepPrefix+keepSuffix {
		return s
	}

	for i := keepPrefix; i < len(runes)-keepSuffix; i++ {
		runes[i] = maskChar
	}

	return string(runes)
}
