package csv

import (
	"reflect"
	"strings"
	"testing"

	"insight/internal/config"
)

/*
TestParse_DelimiterDetection verifies ',', ';' and tab inputs parse to the
same rows without configuration, and quoted delimiters do not confuse the
sniffer.
*/
func TestParse_DelimiterDetection(t *testing.T) {
	inputs := map[string]string{
		"comma":     "date,campaign,spend\n2024-01-01,\"A;B\",10\n",
		"semicolon": "date;campaign;spend\n2024-01-01;A;B;10\n",
		"tab":       "date\tcampaign\tspend\n2024-01-01\tA\t10\n",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			res, err := NewParser(Options{}).Parse(strings.NewReader(in))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(res.Columns, []string{"date", "campaign", "spend"}) {
				t.Fatalf("Columns = %v", res.Columns)
			}
			if name == "semicolon" {
				if len(res.Rows) != 0 || res.Skipped != 1 {
					t.Fatalf("four-field row should be skipped: %+v", res)
				}
				return
			}
			if len(res.Rows) != 1 || res.Rows[0]["spend"] != "10" {
				t.Fatalf("Rows = %+v", res.Rows)
			}
		})
	}
}

/*
TestParse_HeadersAndValues verifies BOM stripping, header mapping,
normalization with diacritic folding, trimming, and empty-to-nil.
*/
func TestParse_HeadersAndValues(t *testing.T) {
	in := "\ufeffDatum,Název Kampaně,Spend ,Kliky\n 2024-01-01 , Jaro ,,5\n\n"
	p := NewParser(Options{
		Comma:            ',',
		TrimSpace:        true,
		NormalizeHeaders: true,
		HeaderMap:        map[string]string{"Datum": "date"},
	})
	res, err := p.Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"date", "nazev_kampane", "spend", "kliky"}
	if !reflect.DeepEqual(res.Columns, want) {
		t.Fatalf("Columns = %v, want %v", res.Columns, want)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("blank trailing line must not become a row: %+v", res.Rows)
	}
	r := res.Rows[0]
	if r["date"] != "2024-01-01" || r["nazev_kampane"] != "Jaro" || r["spend"] != nil || r["kliky"] != "5" {
		t.Fatalf("row = %#v", r)
	}
}

/*
TestParse_Errors verifies empty input and duplicate headers fail while
ragged rows are skipped.
*/
func TestParse_Errors(t *testing.T) {
	if _, err := NewParser(Options{}).Parse(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := NewParser(Options{NormalizeHeaders: true}).Parse(strings.NewReader("Spend,spend\n1,2\n")); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	res, err := NewParser(Options{}).Parse(strings.NewReader("a,b\n1,2\n3\n4,5,6\n7,8\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || res.Skipped != 2 {
		t.Fatalf("rows=%d skipped=%d", len(res.Rows), res.Skipped)
	}
}

/*
TestParse_NoHeader verifies synthesized column names.
*/
func TestParse_NoHeader(t *testing.T) {
	res, err := NewParser(Options{NoHeader: true}).Parse(strings.NewReader("x,1\ny,2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Columns, []string{"col_0", "col_1"}) || len(res.Rows) != 2 {
		t.Fatalf("res = %+v", res)
	}
}

/*
TestFromConfigOptions verifies defaults and overrides from the options bag.
*/
func TestFromConfigOptions(t *testing.T) {
	o := FromConfigOptions(config.Options{})
	if o.NoHeader || o.Comma != 0 || !o.TrimSpace || o.NormalizeHeaders {
		t.Fatalf("defaults = %+v", o)
	}
	o = FromConfigOptions(config.Options{"has_header": false, "comma": `\t`, "normalize_headers": true})
	if !o.NoHeader || o.Comma != '\t' || !o.NormalizeHeaders {
		t.Fatalf("overrides = %+v", o)
	}
}

/*
TestNormalize verifies folding of accented and spaced names.
*/
func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{
		"Název Kampaně": "nazev_kampane",
		"  Spend  USD ": "spend_usd",
		"Dátum":         "datum",
		"clicks":        "clicks",
	} {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
