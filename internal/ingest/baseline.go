package ingest

import "github.com/hyperjump/logsentry/internal/models"

// SeedSource is the source recorded for entries from DefaultBaseline.
const SeedSource = "seed"

// DefaultBaseline is a small set of routine operational log lines used to
// bootstrap an empty baseline.
var DefaultBaseline = []string{
	"User admin logged in successfully from IP 192.168.1.5 via SSH.",
	"System scheduled backup started at 02:00 AM.",
	"File server synced 500 files to cloud storage.",
	"User alice access HR database for payroll report.",
	"Antivirus scan completed. No threats found.",
	"Network interface eth0 up, speed 1000Mbps.",
	"Web server apache2 restarted successfully.",
	"Database connection pool initialized with 10 connections.",
}

// SeedInputs returns DefaultBaseline as entry inputs under category.
func SeedInputs(category string) []models.EntryInput {
	out := make([]models.EntryInput, len(DefaultBaseline))
	for i, text := range DefaultBaseline {
		out[i] = models.EntryInput{Text: text, Category: category, Source: SeedSource}
	}
	return out
}
