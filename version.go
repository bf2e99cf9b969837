package registry

import (
	"encoding/binary"
	"time"
)

// PackageVersion is one published semver version of a Package. See spec §3.
type PackageVersion struct {
	ID              int64
	Package         string
	Version         string
	Description     string
	UploadedAt      time.Time
	UploadedBy      int64
	Yanked          bool
	DownloadCount   int64
	DownloadsSeries DownloadsSeries
	DepsLastCheck   *time.Time
	DepsHasOutdated bool
	DepsHasCVEs     bool
}

// PackageVersionDoc records documentation-build state for one (package,
// version, target) triple. See spec §3.
type PackageVersionDoc struct {
	Package     string
	Version     string
	Target      string
	IsAttempted bool
	IsPresent   bool
}

// downloadsSeriesDays is the ring buffer length: a little-endian u32 counter
// per day-of-year slot, modulo 90. See spec §3.
const downloadsSeriesDays = 90

// DownloadsSeries is a 90-day ring buffer of little-endian u32 download
// counters keyed by day-of-year modulo 90, per spec §3.
type DownloadsSeries [downloadsSeriesDays * 4]byte

// slotFor returns the ring-buffer index for t, wrapping at 90 per spec's
// "keyed by day-of-year modulo 90": day 91 of the year shares slot 0 with
// day 1.
func slotFor(t time.Time) int {
	return (t.YearDay() - 1) % downloadsSeriesDays
}

// Increment bumps the counter for day t by one, returning the updated
// series. The zero value of DownloadsSeries is a valid empty series.
func (s DownloadsSeries) Increment(t time.Time) DownloadsSeries {
	slot := slotFor(t) * 4
	v := binary.LittleEndian.Uint32(s[slot : slot+4])
	binary.LittleEndian.PutUint32(s[slot:slot+4], v+1)
	return s
}

// At returns the counter stored for day t.
func (s DownloadsSeries) At(t time.Time) uint32 {
	slot := slotFor(t) * 4
	return binary.LittleEndian.Uint32(s[slot : slot+4])
}

// Bytes returns the raw 360-byte series, the form persisted in the Catalog.
func (s DownloadsSeries) Bytes() []byte { return s[:] }

// DownloadsSeriesFromBytes reconstructs a series from its persisted form.
// A short or nil input yields the zero series.
func DownloadsSeriesFromBytes(b []byte) DownloadsSeries {
	var s DownloadsSeries
	copy(s[:], b)
	return s
}
