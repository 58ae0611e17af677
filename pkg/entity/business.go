// Package entity maps raw search results to the stored business document.
package entity

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Category is a Yelp category reference.
type Category struct {
	Alias string `json:"alias" bson:"alias"`
	Title string `json:"title" bson:"title"`
}

// Coordinates is the raw coordinate pair of a search result.
type Coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Location holds the address fields. In the stored document they sit at
// the top level next to name and phone.
type Location struct {
	Address1       *string  `json:"address1" bson:"address1"`
	Address2       *string  `json:"address2" bson:"address2"`
	Address3       *string  `json:"address3" bson:"address3"`
	City           string   `json:"city" bson:"city"`
	ZipCode        *string  `json:"zip_code" bson:"zip_code"`
	Country        string   `json:"country" bson:"country"`
	State          string   `json:"state" bson:"state"`
	DisplayAddress []string `json:"display_address" bson:"display_address"`
}

// RawBusiness is one element of the search response "businesses" array.
// Pointer fields distinguish a missing key from a zero value.
type RawBusiness struct {
	ID           string       `json:"id"`
	Alias        *string      `json:"alias"`
	Name         *string      `json:"name"`
	ImageURL     *string      `json:"image_url"`
	IsClosed     bool         `json:"is_closed"`
	URL          string       `json:"url"`
	ReviewCount  *int         `json:"review_count"`
	Categories   []Category   `json:"categories"`
	Rating       *float64     `json:"rating"`
	Coordinates  *Coordinates `json:"coordinates"`
	Price        *string      `json:"price"`
	Location     *Location    `json:"location"`
	Phone        string       `json:"phone"`
	DisplayPhone *string      `json:"display_phone"`
	Distance     float64      `json:"distance"`

	// Source is the record exactly as received, kept for error reports.
	Source json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the record and keeps a copy of its bytes in Source.
func (r *RawBusiness) UnmarshalJSON(data []byte) error {
	type plain RawBusiness
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RawBusiness(p)
	r.Source = append(json.RawMessage(nil), data...)
	return nil
}

// Coords is the stored coordinate pair.
type Coords struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// YelpInfo is the source-specific part of the stored document.
type YelpInfo struct {
	Rating      *float64   `json:"rating" bson:"rating"`
	ReviewCount *int       `json:"review_count" bson:"review_count"`
	Price       *string    `json:"price" bson:"price"`
	Categories  []Category `json:"categories" bson:"categories"`
	IsClosed    bool       `json:"is_closed" bson:"is_closed"`
	Alias       string     `json:"alias" bson:"alias"`
}

// Business is the normalized document written to the entity collection.
// HashID is its natural key.
type Business struct {
	ImageURL string   `json:"image_url" bson:"image_url"`
	Name     string   `json:"name" bson:"name"`
	Coords   Coords   `json:"coords" bson:"coords"`
	Phone    string   `json:"phone" bson:"phone"`
	Yelp     YelpInfo `json:"yelp" bson:"yelp"`
	Location `bson:",inline"`
	HashID   string `json:"hash_id" bson:"hash_id"`
}

// Zip returns the zip code the hash was computed from.
func (b Business) Zip() string {
	if b.ZipCode == nil {
		return ""
	}
	return *b.ZipCode
}

// NormalizeError reports a raw record that lacks required fields.
type NormalizeError struct {
	Fields []string
	Raw    RawBusiness
}

// Error implements the error interface.
func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize business %q: missing fields %s",
		e.Raw.ID, strings.Join(e.Fields, ", "))
}

// RawJSON renders the offending record for logging, as received when the
// record was decoded from a response.
func (e *NormalizeError) RawJSON() []byte {
	if len(e.Raw.Source) > 0 {
		return e.Raw.Source
	}
	data, err := json.Marshal(e.Raw)
	if err != nil {
		return []byte(fmt.Sprintf("%+v", e.Raw))
	}
	return data
}

// HashID returns the hex MD5 digest of name followed by the lowercased zip.
func HashID(name, zip string) string {
	sum := md5.Sum([]byte(name + strings.ToLower(zip)))
	return hex.EncodeToString(sum[:])
}

// Normalize maps a raw search result to a Business. Any missing required
// field fails the whole record.
func Normalize(raw RawBusiness) (Business, error) {
	var missing []string
	if raw.Name == nil {
		missing = append(missing, "name")
	}
	if raw.ImageURL == nil {
		missing = append(missing, "image_url")
	}
	if raw.Alias == nil {
		missing = append(missing, "alias")
	}
	if raw.DisplayPhone == nil {
		missing = append(missing, "display_phone")
	}
	if raw.Coordinates == nil {
		missing = append(missing, "coordinates")
	} else {
		if raw.Coordinates.Latitude == nil {
			missing = append(missing, "coordinates.latitude")
		}
		if raw.Coordinates.Longitude == nil {
			missing = append(missing, "coordinates.longitude")
		}
	}
	if raw.Location == nil {
		missing = append(missing, "location")
	} else if raw.Location.ZipCode == nil {
		missing = append(missing, "location.zip_code")
	}
	if len(missing) > 0 {
		return Business{}, &NormalizeError{Fields: missing, Raw: raw}
	}

	b := Business{
		ImageURL: *raw.ImageURL,
		Name:     *raw.Name,
		Coords: Coords{
			Lat: *raw.Coordinates.Latitude,
			Lon: *raw.Coordinates.Longitude,
		},
		Phone: *raw.DisplayPhone,
		Yelp: YelpInfo{
			Rating:      raw.Rating,
			ReviewCount: raw.ReviewCount,
			Price:       raw.Price,
			Categories:  raw.Categories,
			IsClosed:    false,
			Alias:       *raw.Alias,
		},
		Location: *raw.Location,
	}
	b.HashID = HashID(b.Name, *raw.Location.ZipCode)

	return b, nil
}

// NormalizeAll normalizes a page of results, stopping at the first bad record.
func NormalizeAll(raws []RawBusiness) ([]Business, error) {
	out := make([]Business, 0, len(raws))
	for _, raw := range raws {
		b, err := Normalize(raw)
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Dedupe collapses businesses sharing a HashID, keeping the last occurrence
// at the position of the first.
func Dedupe(businesses []Business) []Business {
	pos := make(map[string]int, len(businesses))
	out := make([]Business, 0, len(businesses))
	for _, b := range businesses {
		if i, ok := pos[b.HashID]; ok {
			out[i] = b
			continue
		}
		pos[b.HashID] = len(out)
		out = append(out, b)
	}
	return out
}
