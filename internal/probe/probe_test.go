package probe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"insight/internal/config"
)

const campaignsCSV = `Date;Campaign;Channel;Spend;Clicks;Impressions;Order ID;Active
03.01.2024;Spring;search;10.5;5;100;1001;yes
04.01.2024;Spring;social;12;6;120;1002;no
10.01.2024;Summer;search;9;3;90;1003;yes
14.01.2024;Summer;social;;4;80;1004;no
`

/*
TestAnalyze_CSV verifies type inference, role assignment, the date range,
and the suggested configuration for a semicolon CSV with DMY dates.
*/
func TestAnalyze_CSV(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Ad Campaigns.csv"), []byte(campaignsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := Analyze(context.Background(), Options{Location: "Ad Campaigns.csv", BaseDir: dir})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	types := map[string]string{}
	roles := map[string]string{}
	for _, c := range a.Columns {
		types[c.Name] = c.Type
		roles[c.Name] = c.Role
	}
	wantTypes := map[string]string{
		"Date": "date", "Campaign": "text", "Channel": "text", "Spend": "real",
		"Clicks": "integer", "Impressions": "integer", "Order ID": "integer", "Active": "boolean",
	}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Fatalf("types = %v, want %v", types, wantTypes)
	}
	if roles["Order ID"] != RoleIgnore || roles["Date"] != RoleDate {
		t.Fatalf("roles = %v", roles)
	}
	if a.DateCol != "Date" || a.Columns[0].Layout != "02.01.2006" {
		t.Fatalf("date col = %q layout = %q", a.DateCol, a.Columns[0].Layout)
	}
	if want := []string{"Campaign", "Channel", "Active"}; !reflect.DeepEqual(a.Dimensions, want) {
		t.Fatalf("Dimensions = %v, want %v", a.Dimensions, want)
	}
	if want := []string{"Spend", "Clicks", "Impressions"}; !reflect.DeepEqual(a.Metrics, want) {
		t.Fatalf("Metrics = %v, want %v", a.Metrics, want)
	}
	if a.Earliest != "2024-01-03" || a.Latest != "2024-01-14" {
		t.Fatalf("range = %s..%s", a.Earliest, a.Latest)
	}

	cfg := a.Config
	if cfg.Job != "ad_campaigns" || cfg.Dataset.PrimarySource != "ad_campaigns" {
		t.Fatalf("job = %q", cfg.Job)
	}
	wantCmp := config.Comparison{
		CurrentStart: "2024-01-08", CurrentEnd: "2024-01-14",
		PreviousStart: "2024-01-01", PreviousEnd: "2024-01-07",
	}
	if cfg.Report.Comparison != wantCmp {
		t.Fatalf("Comparison = %+v", cfg.Report.Comparison)
	}
	if !reflect.DeepEqual(cfg.Report.DateLayouts, []string{"02.01.2006"}) {
		t.Fatalf("DateLayouts = %v", cfg.Report.DateLayouts)
	}
	wantDerived := []config.DerivedMetric{
		{Name: "ctr", Formula: "Clicks / Impressions"},
		{Name: "cpc", Formula: "Spend / Clicks"},
	}
	if !reflect.DeepEqual(cfg.DerivedMetrics, wantDerived) {
		t.Fatalf("DerivedMetrics = %v", cfg.DerivedMetrics)
	}

	// The skeleton must pass validation as-is.
	cfg.BaseDir = dir
	cfg.ApplyDefaults()
	if err := config.Err(config.Validate(cfg)); err != nil {
		t.Fatalf("skeleton does not validate: %v", err)
	}
}

/*
TestAnalyze_RemoteJSONAndTruncation verifies NDJSON over HTTP and that a
byte limit cuts the sample at a record boundary.
*/
func TestAnalyze_RemoteJSONAndTruncation(t *testing.T) {
	var body strings.Builder
	for i := 1; i <= 9; i++ {
		body.WriteString(`{"day":"2024-02-0` + string(rune('0'+i)) + `","region":"eu","revenue":` + string(rune('0'+i)) + "}\n")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.String()))
	}))
	defer srv.Close()

	a, err := Analyze(context.Background(), Options{Location: srv.URL + "/sales.ndjson?k=v", MaxBytes: 150})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !a.Truncated || a.Rows == 0 || a.Rows >= 9 {
		t.Fatalf("Truncated=%v Rows=%d", a.Truncated, a.Rows)
	}
	if a.DateCol != "day" || !reflect.DeepEqual(a.Metrics, []string{"revenue"}) || !reflect.DeepEqual(a.Dimensions, []string{"region"}) {
		t.Fatalf("analysis = %+v", a)
	}
	if a.Config.Job != "sales" {
		t.Fatalf("job = %q", a.Config.Job)
	}
}

/*
TestInferTypeForColumn verifies the narrowest-type ordering.
*/
func TestInferTypeForColumn(t *testing.T) {
	tests := []struct {
		vals []string
		want string
	}{
		{[]string{"", " "}, "text"},
		{[]string{"1", "0", ""}, "integer"},
		{[]string{"yes", "No"}, "boolean"},
		{[]string{"1.5", "2"}, "real"},
		{[]string{"2024-01-01", "2024-01-02"}, "date"},
		{[]string{"2024-01-01", "2024-01-02 10:00:00"}, "timestamp"},
		{[]string{"2024-01-01", "soon"}, "text"},
	}
	for _, tc := range tests {
		if got := inferTypeForColumn(tc.vals); got != tc.want {
			t.Errorf("inferTypeForColumn(%q) = %q, want %q", tc.vals, got, tc.want)
		}
	}
}

/*
TestSelectBestLayout verifies scoring and the day-month-year tie-break.
*/
func TestSelectBestLayout(t *testing.T) {
	if got := selectBestLayout([]string{"03/04/2024", "05/06/2024"}, dateLayouts, dateLayoutPreference); got != "02/01/2006" {
		t.Fatalf("ambiguous slashes = %q, want DMY", got)
	}
	if got := selectBestLayout([]string{"03/04/2024", "12/25/2024"}, dateLayouts, dateLayoutPreference); got != "01/02/2006" {
		t.Fatalf("MDY evidence = %q", got)
	}
	if got := selectBestLayout([]string{"nope"}, dateLayouts, dateLayoutPreference); got != "" {
		t.Fatalf("no match = %q", got)
	}
}

/*
TestNormalizeFieldName verifies accent folding and separator collapsing.
*/
func TestNormalizeFieldName(t *testing.T) {
	for in, want := range map[string]string{
		"Kampaně Q1":   "kampane_q1",
		"sales--2024.": "sales_2024",
		"???":          "insight",
	} {
		if got := normalizeFieldName(in); got != want {
			t.Errorf("normalizeFieldName(%q) = %q, want %q", in, got, want)
		}
	}
}

/*
TestRender verifies the summary table and both config encodings.
*/
func TestRender(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.csv"), []byte(campaignsCSV), 0o644)
	a, err := Analyze(context.Background(), Options{Location: filepath.Join(dir, "a.csv")})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := a.WriteSummary(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "current:  2024-01-08 .. 2024-01-14") {
		t.Fatalf("summary:\n%s", buf.String())
	}
	js, err := a.ConfigJSON()
	if err != nil {
		t.Fatal(err)
	}
	back, err := config.Decode(js, ".json")
	if err != nil || back.Job != "a" {
		t.Fatalf("JSON round trip: %v %+v", err, back)
	}
	ym, err := a.ConfigYAML()
	if err != nil {
		t.Fatal(err)
	}
	back, err = config.Decode(ym, ".yaml")
	if err != nil || back.Report.Comparison != a.Config.Report.Comparison {
		t.Fatalf("YAML round trip: %v %+v", err, back)
	}
}
