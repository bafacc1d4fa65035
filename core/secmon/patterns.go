package secmon

import (
	"regexp"
	"strings"
)

// Known scanner fingerprints in User-Agent strings.
var scannerAgents = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"dirbuster",
	"gobuster",
	"wfuzz",
	"acunetix",
	"nessus",
	"metasploit",
	"hydra",
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)union[\s/*]+select`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)drop\s+table`),
	regexp.MustCompile(`(?i);\s*--`),
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)on(error|load|click)\s*=`),
	regexp.MustCompile(`\.\./\.\./`),
}

func matchScannerAgent(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, name := range scannerAgents {
		if strings.Contains(ua, name) {
			return name
		}
	}
	return ""
}

func matchInjection(payload string) string {
	for _, re := range injectionPatterns {
		if re.MatchString(payload) {
			return re.String()
		}
	}
	return ""
}
