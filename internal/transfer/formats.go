package transfer

import "strings"

// FormatCandidates is an ordered list of importer format identifiers.
type FormatCandidates []string

var (
	priorityFormats = []string{"bitwardenjson", "json", "1password1pif"}
	fallbackFormats = FormatCandidates{"bitwardenjson", "json", "encrypted_json", "bitwardencsv"}
	knownFormats    = newFormatSet(
		"bitwardenjson", "json", "encrypted_json", "bitwardencsv", "csv",
		"1password1pif", "1password1pux", "1passwordmaccsv", "1passwordwincsv",
		"ascendocsv", "avastcsv", "avastjson", "aviracsv", "blackberrycsv", "blurcsv", "bravecsv",
		"buttercupcsv", "chromecsv", "clipperzhtml", "codebookcsv", "dashlanecsv", "dashlanejson",
		"edgecsv", "encryptrcsv", "enpasscsv", "enpassjson", "firefoxcsv", "fsecurefsk", "gnomejson",
		"kasperskytxt", "keepass2xml", "keepassxcsv", "keepercsv", "lastpasscsv", "logmeoncecsv",
		"meldiumcsv", "msecurecsv", "mykicsv", "netwrixpasswordsecure", "nordpasscsv", "operacsv",
		"padlockcsv", "passboltcsv", "passkeepcsv", "passkyjson", "passmanjson", "passpackcsv",
		"passwordagentcsv", "passwordbossjson", "passworddepot17xml", "passworddragonxml",
		"passwordwallettxt", "passwordxpcsv", "protonpass", "psonojson", "pwsafexml", "remembearcsv",
		"roboformcsv", "safaricsv", "safeincloudxml", "saferpasscsv", "securesafecsv", "splashidcsv",
		"stickypasswordxml", "truekeycsv", "upmcsv", "vivaldicsv", "yoticsv", "zohovaultcsv",
	)
)

type formatSet map[string]struct{}

func newFormatSet(formats ...string) formatSet {
	set := make(formatSet, len(formats))
	for _, format := range formats {
		set[format] = struct{}{}
	}
	return set
}

func (set formatSet) contains(format string) bool {
	_, present := set[format]
	return present
}

// FallbackFormats returns the candidates used when discovery yields nothing.
func FallbackFormats() FormatCandidates {
	return append(FormatCandidates{}, fallbackFormats...)
}

// IsKnownFormat reports whether the identifier belongs to the importer allow-list.
func IsKnownFormat(format string) bool {
	return knownFormats.contains(strings.ToLower(strings.TrimSpace(format)))
}

// ParseFormatListing turns the importer listing into ordered candidates: priority formats first,
// then the remaining known formats in listing order. An empty result selects the fallback list.
func ParseFormatListing(listing string) FormatCandidates {
	discovered := listedFormats(listing)
	if len(discovered) == 0 {
		return FallbackFormats()
	}
	return orderFormats(discovered)
}

func listedFormats(listing string) []string {
	discovered := make([]string, 0)
	seen := map[string]struct{}{}
	for _, line := range strings.Split(listing, "\n") {
		token := normalizeFormatToken(line)
		if len(token) == 0 || !knownFormats.contains(token) {
			continue
		}
		if _, duplicate := seen[token]; duplicate {
			continue
		}
		seen[token] = struct{}{}
		discovered = append(discovered, token)
	}
	return discovered
}

func orderFormats(discovered []string) FormatCandidates {
	ordered := make(FormatCandidates, 0, len(discovered))
	available := newFormatSet(discovered...)
	prioritized := newFormatSet(priorityFormats...)
	for _, format := range priorityFormats {
		if available.contains(format) {
			ordered = append(ordered, format)
		}
	}
	for _, format := range discovered {
		if !prioritized.contains(format) {
			ordered = append(ordered, format)
		}
	}
	return ordered
}

func normalizeFormatToken(line string) string {
	token := strings.ToLower(strings.TrimSpace(line))
	token = strings.TrimLeft(token, "-*• \t")
	return strings.TrimSpace(token)
}
