package entity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const sampleResult = `{
	"id": "abc123",
	"alias": "joes-pizza-boston",
	"name": "Joe's Pizza",
	"image_url": "https://example.com/joe.jpg",
	"is_closed": true,
	"review_count": 42,
	"categories": [{"alias": "pizza", "title": "Pizza"}],
	"rating": 4.5,
	"coordinates": {"latitude": 42.35, "longitude": -71.06},
	"price": "$$",
	"location": {
		"address1": "1 Main St",
		"address2": null,
		"address3": "",
		"city": "Boston",
		"zip_code": "02108",
		"country": "US",
		"state": "MA",
		"display_address": ["1 Main St", "Boston, MA 02108"]
	},
	"phone": "+16175550100",
	"display_phone": "(617) 555-0100",
	"distance": 120.5
}`

func decodeRaw(t *testing.T, data string) RawBusiness {
	t.Helper()
	var raw RawBusiness
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("decode raw business: %v", err)
	}
	return raw
}

func TestNormalize(t *testing.T) {
	raw := decodeRaw(t, sampleResult)

	b, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if b.Name != "Joe's Pizza" {
		t.Errorf("Name = %q", b.Name)
	}
	if b.Phone != "(617) 555-0100" {
		t.Errorf("Phone = %q, want display phone", b.Phone)
	}
	if b.Coords.Lat != 42.35 || b.Coords.Lon != -71.06 {
		t.Errorf("Coords = %+v", b.Coords)
	}
	if b.Yelp.IsClosed {
		t.Error("Yelp.IsClosed should always be false")
	}
	if b.Yelp.Alias != "joes-pizza-boston" {
		t.Errorf("Yelp.Alias = %q", b.Yelp.Alias)
	}
	if b.Yelp.Rating == nil || *b.Yelp.Rating != 4.5 {
		t.Errorf("Yelp.Rating = %v", b.Yelp.Rating)
	}
	if b.City != "Boston" || b.Zip() != "02108" {
		t.Errorf("location not merged: city=%q zip=%q", b.City, b.Zip())
	}
	if b.HashID != HashID("Joe's Pizza", "02108") {
		t.Errorf("HashID = %q", b.HashID)
	}
}

func TestNormalize_LocationFlattenedInJSON(t *testing.T) {
	b, err := Normalize(decodeRaw(t, sampleResult))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"zip_code", "city", "state", "display_address", "hash_id"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document missing top-level %q", key)
		}
	}
	if _, ok := doc["Location"]; ok {
		t.Error("location should not be nested")
	}
}

func TestNormalize_OptionalFieldsAbsent(t *testing.T) {
	raw := decodeRaw(t, sampleResult)
	raw.Rating = nil
	raw.Price = nil
	raw.ReviewCount = nil
	raw.Categories = nil

	b, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if b.Yelp.Rating != nil || b.Yelp.Price != nil || b.Yelp.ReviewCount != nil {
		t.Errorf("optional fields should stay nil, got %+v", b.Yelp)
	}
}

func TestNormalize_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawBusiness)
		field  string
	}{
		{"name", func(r *RawBusiness) { r.Name = nil }, "name"},
		{"image", func(r *RawBusiness) { r.ImageURL = nil }, "image_url"},
		{"alias", func(r *RawBusiness) { r.Alias = nil }, "alias"},
		{"phone", func(r *RawBusiness) { r.DisplayPhone = nil }, "display_phone"},
		{"coordinates", func(r *RawBusiness) { r.Coordinates = nil }, "coordinates"},
		{"latitude", func(r *RawBusiness) { r.Coordinates.Latitude = nil }, "coordinates.latitude"},
		{"location", func(r *RawBusiness) { r.Location = nil }, "location"},
		{"zip", func(r *RawBusiness) { r.Location.ZipCode = nil }, "location.zip_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := decodeRaw(t, sampleResult)
			tt.mutate(&raw)

			_, err := Normalize(raw)
			var nerr *NormalizeError
			if !errors.As(err, &nerr) {
				t.Fatalf("Normalize() error = %v, want *NormalizeError", err)
			}
			if !strings.Contains(nerr.Error(), tt.field) {
				t.Errorf("error %q does not name field %q", nerr.Error(), tt.field)
			}
			if !strings.Contains(string(nerr.RawJSON()), "abc123") {
				t.Error("RawJSON should contain the offending record")
			}
		})
	}
}

func TestNormalizeError_RawJSONIsRecordAsReceived(t *testing.T) {
	page := `{"businesses": [{
		"id": "no-zip",
		"alias": "corner-deli",
		"name": "Corner Deli",
		"image_url": "https://example.com/deli.jpg",
		"display_phone": "(617) 555-0199",
		"coordinates": {"latitude": 42.3, "longitude": -71.1},
		"location": {"city": "Boston"},
		"transactions": ["pickup", "delivery"]
	}]}`

	var resp struct {
		Businesses []RawBusiness `json:"businesses"`
	}
	if err := json.Unmarshal([]byte(page), &resp); err != nil {
		t.Fatalf("decode page: %v", err)
	}

	_, err := Normalize(resp.Businesses[0])
	var nerr *NormalizeError
	if !errors.As(err, &nerr) {
		t.Fatalf("Normalize() error = %v, want *NormalizeError", err)
	}

	got := string(nerr.RawJSON())
	// fields outside RawBusiness survive
	if !strings.Contains(got, `"transactions"`) || !strings.Contains(got, "delivery") {
		t.Errorf("RawJSON() = %s, want the record as received", got)
	}
	if !json.Valid(nerr.RawJSON()) {
		t.Errorf("RawJSON() is not valid JSON: %s", got)
	}
}

func TestNormalizeError_RawJSONWithoutSource(t *testing.T) {
	name := "Built In Code"
	err := &NormalizeError{Fields: []string{"image_url"}, Raw: RawBusiness{ID: "built", Name: &name}}

	if !strings.Contains(string(err.RawJSON()), "built") {
		t.Errorf("RawJSON() = %s, want the encoded record", err.RawJSON())
	}
}

func TestHashID_Deterministic(t *testing.T) {
	raw := decodeRaw(t, sampleResult)

	first, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	second, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if first.HashID != second.HashID {
		t.Errorf("hash not deterministic: %q vs %q", first.HashID, second.HashID)
	}
}

func TestHashID_CollidesOnNameAndZip(t *testing.T) {
	a := decodeRaw(t, sampleResult)
	b := decodeRaw(t, sampleResult)
	otherPhone := "(617) 555-9999"
	otherAlias := "joes-pizza-boston-2"
	b.DisplayPhone = &otherPhone
	b.Alias = &otherAlias
	b.ID = "different"

	na, _ := Normalize(a)
	nb, _ := Normalize(b)
	if na.HashID != nb.HashID {
		t.Errorf("same name+zip should collide: %q vs %q", na.HashID, nb.HashID)
	}
}

func TestHashID_LowercasesZip(t *testing.T) {
	if HashID("Cafe", "AB1 2CD") != HashID("Cafe", "ab1 2cd") {
		t.Error("zip should be lowercased before hashing")
	}
	if HashID("Cafe", "02108") == HashID("cafe", "02108") {
		t.Error("name should not be lowercased")
	}
	// md5 of the empty string
	if got := HashID("", ""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("HashID of empty input = %q", got)
	}
}

func TestNormalizeAll_StopsOnFirstBadRecord(t *testing.T) {
	good := decodeRaw(t, sampleResult)
	bad := decodeRaw(t, sampleResult)
	bad.Name = nil

	out, err := NormalizeAll([]RawBusiness{good, bad, good})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(out) != 1 {
		t.Errorf("got %d normalized before failure, want 1", len(out))
	}
}

func TestDedupe(t *testing.T) {
	in := []Business{
		{Name: "a", HashID: "1", Phone: "first"},
		{Name: "b", HashID: "2"},
		{Name: "a", HashID: "1", Phone: "second"},
	}

	out := Dedupe(in)
	if len(out) != 2 {
		t.Fatalf("Dedupe() len = %d, want 2", len(out))
	}
	if out[0].Phone != "second" {
		t.Errorf("last occurrence should win, got %q", out[0].Phone)
	}
	if out[1].HashID != "2" {
		t.Errorf("order not preserved: %+v", out)
	}
}
