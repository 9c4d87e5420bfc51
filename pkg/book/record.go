// Package book defines the normalized book record served to clients and the
// mapping from raw Google Books volume items into it.
package book

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderCoverURL is used when a volume carries no cover image.
const PlaceholderCoverURL = "https://via.placeholder.com/150x220?text=No+Cover+Available"

// DisplayDateLayout is the human-readable form of a normalized publish date.
const DisplayDateLayout = "January 2, 2006"

// publishDateLayouts are the accepted provider date shapes, year/month/day
// with either a 4-digit or a 2-digit year.
var publishDateLayouts = []string{
	"2006/01/02",
	"06/01/02",
}

// Record is a normalized book. Treat it as immutable once built.
type Record struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	Description   string   `json:"description,omitempty"`
	PageCount     int      `json:"pageCount,omitempty"`
	Categories    []string `json:"categories"`
	CoverURL      string   `json:"imageUrl"`
	Language      string   `json:"language,omitempty"`
}

// RawRecord is a Google Books volume item as returned by the volumes endpoint.
type RawRecord struct {
	ID         string      `json:"id"`
	VolumeInfo *VolumeInfo `json:"volumeInfo,omitempty"`
}

// VolumeInfo holds the descriptive part of a volume item.
type VolumeInfo struct {
	Title         string      `json:"title"`
	Authors       []string    `json:"authors"`
	Publisher     string      `json:"publisher"`
	PublishedDate string      `json:"publishedDate"`
	Description   string      `json:"description"`
	PageCount     int         `json:"pageCount"`
	Categories    []string    `json:"categories"`
	ImageLinks    *ImageLinks `json:"imageLinks,omitempty"`
	Language      string      `json:"language"`
}

// ImageLinks are the cover image URLs of a volume.
type ImageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
}

// VolumesResponse is the body of a volumes search. Items is absent when the
// requested window lies past the end of the result set.
type VolumesResponse struct {
	TotalItems int         `json:"totalItems"`
	Items      []RawRecord `json:"items"`
}

// Normalize maps a raw volume into a Record. Missing fields degrade to empty
// values; it never fails.
func Normalize(raw RawRecord) Record {
	rec := Record{
		ID:         raw.ID,
		Authors:    []string{},
		Categories: []string{},
		CoverURL:   PlaceholderCoverURL,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	info := raw.VolumeInfo
	if info == nil {
		return rec
	}

	rec.Title = info.Title
	rec.Authors = append(rec.Authors, info.Authors...)
	rec.Publisher = info.Publisher
	rec.Description = info.Description
	rec.Categories = append(rec.Categories, info.Categories...)
	rec.Language = info.Language
	if info.PageCount > 0 {
		rec.PageCount = info.PageCount
	}
	if date, ok := NormalizeDate(info.PublishedDate); ok {
		rec.PublishedDate = date
	}
	if cover := coverURL(info.ImageLinks); cover != "" {
		rec.CoverURL = cover
	}

	return rec
}

// NormalizeAll maps a page of raw volumes, keeping provider order.
func NormalizeAll(raws []RawRecord) []Record {
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, Normalize(raw))
	}
	return records
}

// NormalizeDate converts a year/month/day provider date into DisplayDateLayout.
// Returns false when the value matches no accepted layout.
func NormalizeDate(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	for _, layout := range publishDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DisplayDateLayout), true
		}
	}
	return "", false
}

func coverURL(links *ImageLinks) string {
	if links == nil {
		return ""
	}
	if links.Thumbnail != "" {
		return links.Thumbnail
	}
	return links.SmallThumbnail
}
