package aggregate

import (
	"math"
	"reflect"
	"testing"

	"scanaudit/auditlog"
)

func rowsFrom(records ...[]string) []auditlog.Row {
	all := append([][]string{auditlog.DefaultHeader}, records...)
	return auditlog.FromRecords(all)
}

func TestEmptyAndHeaderOnlyInput(t *testing.T) {
	inputs := [][]auditlog.Row{
		nil,
		{},
		auditlog.FromRecords([][]string{auditlog.DefaultHeader}),
	}
	for i, rows := range inputs {
		if got := ComputeOverview(rows); got != (Overview{}) {
			t.Fatalf("input %d: expected zero overview, got %+v", i, got)
		}
		stats := ComputeUserStats(rows)
		if !stats.Empty() || stats.Len() != 0 {
			t.Fatalf("input %d: expected empty user stats, got %d users", i, stats.Len())
		}
		if got := ComputeStatusBreakdown(rows); got != (StatusBreakdown{}) {
			t.Fatalf("input %d: expected zero breakdown, got %+v", i, got)
		}
	}
}

func TestAliceExample(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-01-01 10:00:00", "alice (A1)", "scan.sh", "X", "/srv", "1s", "2", "SUCCESS"},
		[]string{"2025-01-01 11:00:00", "alice (A1)", "scan.sh", "Y", "/srv", "1s", "0", "ERROR"},
	)

	overview := ComputeOverview(rows)
	want := Overview{TotalScans: 2, UniqueUsers: 1, TotalFindings: 2, ComplianceScore: 50}
	if overview != want {
		t.Fatalf("unexpected overview: %+v", overview)
	}

	stats := ComputeUserStats(rows)
	if stats.Len() != 1 {
		t.Fatalf("expected one user, got %d", stats.Len())
	}
	alice, ok := stats.Get("alice")
	if !ok {
		t.Fatal("expected alice in user stats")
	}
	if alice.ScanCount != 2 || alice.FindingsTotal != 2 || alice.IsBot {
		t.Fatalf("unexpected stat: %+v", alice)
	}
	if !reflect.DeepEqual(alice.Tools, []string{"X", "Y"}) {
		t.Fatalf("unexpected tools: %v", alice.Tools)
	}
	if alice.LastActive != "2025-01-01 11:00:00" {
		t.Fatalf("unexpected last active: %s", alice.LastActive)
	}
}

func TestBotClassification(t *testing.T) {
	rows := rowsFrom([]string{"2025-01-01 10:00:00", "build-bot (SVC1)", "ci.sh", "Trivy", "img", "3s", "1", "SUCCESS"})
	stat, ok := ComputeUserStats(rows).Get("build-bot")
	if !ok || !stat.IsBot {
		t.Fatalf("expected build-bot to be classified as bot: %+v", stat)
	}

	if !Classify("automated-scanner") {
		t.Fatal("expected automated marker to match")
	}
	if Classify("alice") {
		t.Fatal("alice is not a bot")
	}
	if !Classify("Robot") {
		t.Fatal("substring match should flag Robot")
	}
	if Classify("BuildBOT") || Classify("AUTOMATED") {
		t.Fatal("matching must be case-sensitive")
	}
}

func TestCustomClassifier(t *testing.T) {
	c := NewClassifier([]string{"svc-", "", "jenkins"})
	if got := c.Markers(); !reflect.DeepEqual(got, []string{"svc-", "jenkins"}) {
		t.Fatalf("unexpected markers: %v", got)
	}
	if !c.IsBot("svc-deploy") || !c.IsBot("jenkins") || c.IsBot("build-bot") {
		t.Fatal("unexpected classification with custom markers")
	}
	if NewClassifier(nil).IsBot("bot") {
		t.Fatal("classifier without markers should never match")
	}
}

func TestMissingFindingsContributesZero(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-01-01 10:00:00", "bob (B1)", "scan.sh", "ClamAV", "/tmp", "1s", "", "SUCCESS"},
		[]string{"2025-01-01 10:05:00", "bob (B1)", "scan.sh", "ClamAV", "/tmp", "1s", "oops", "SUCCESS"},
		[]string{"2025-01-01 10:06:00", "bob (B1)", "scan.sh", "ClamAV", "/tmp", "1s", "-4", "SUCCESS"},
		[]string{"2025-01-01 10:07:00", "bob (B1)", "scan.sh"},
	)
	overview := ComputeOverview(rows)
	if overview.TotalFindings != 0 {
		t.Fatalf("expected zero findings, got %d", overview.TotalFindings)
	}
	bob, _ := ComputeUserStats(rows).Get("bob")
	if bob.FindingsTotal != 0 || bob.ScanCount != 4 {
		t.Fatalf("unexpected stat: %+v", bob)
	}
	if !reflect.DeepEqual(bob.Tools, []string{"ClamAV", "unknown"}) {
		t.Fatalf("missing tool should be recorded as unknown: %v", bob.Tools)
	}
}

func TestFindingsTotalsSaturate(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-01-01 10:00:00", "alice (A1)", "scan.sh", "X", "/srv", "1s", "9223372036854775807", "SUCCESS"},
		[]string{"2025-01-01 10:05:00", "alice (A1)", "scan.sh", "X", "/srv", "1s", "1", "SUCCESS"},
		[]string{"2025-01-01 10:06:00", "bob (B1)", "scan.sh", "X", "/srv", "1s", "5", "SUCCESS"},
	)
	overview := ComputeOverview(rows)
	if overview.TotalFindings != math.MaxInt {
		t.Fatalf("expected saturated total, got %d", overview.TotalFindings)
	}
	stats := ComputeUserStats(rows)
	alice, _ := stats.Get("alice")
	if alice.FindingsTotal != math.MaxInt {
		t.Fatalf("expected saturated user total, got %d", alice.FindingsTotal)
	}
	if got := stats.FindingsTotal(); got != math.MaxInt {
		t.Fatalf("expected saturated sum over users, got %d", got)
	}
	if AddFindings(2, 3) != 5 || AddFindings(math.MaxInt-1, 1) != math.MaxInt {
		t.Fatal("unexpected AddFindings result")
	}
}

func TestLastActiveUsesGreatestTimestamp(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-11-13 18:45:00", "rnelson (ITLP01183)", "a.sh", "Checkov", "/", "0s", "23", "SUCCESS"},
		[]string{"2025-11-13 18:56:50", "rnelson (ITLP01183)", "b.sh", "ClamAV", "/tmp", "16s", "0", "SUCCESS"},
		[]string{"2025-11-13 18:44:54", "rnelson (rnelson)", "a.sh", "Checkov", "bash", "0s", "0", "SUCCESS"},
	)
	stat, _ := ComputeUserStats(rows).Get("rnelson")
	if stat.LastActive != "2025-11-13 18:56:50" {
		t.Fatalf("unexpected last active: %s", stat.LastActive)
	}
	if stat.ScanCount != 3 || stat.FindingsTotal != 23 {
		t.Fatalf("unexpected stat: %+v", stat)
	}
	if !reflect.DeepEqual(stat.Tools, []string{"Checkov", "ClamAV"}) {
		t.Fatalf("unexpected tools: %v", stat.Tools)
	}
}

func TestEmptyUsernamesExcluded(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-01-01 10:00:00", "", "a.sh", "X", "", "", "5", "SUCCESS"},
		[]string{"2025-01-01 10:01:00", " (ID9)", "a.sh", "X", "", "", "1", "WARNING"},
		[]string{"2025-01-01 10:02:00", "   (ID7)", "a.sh", "X", "", "", "1", "ERROR"},
		[]string{"2025-01-01 10:03:00", "carol (C3)", "a.sh", "X", "", "", "2", "SUCCESS"},
	)
	overview := ComputeOverview(rows)
	if overview.TotalScans != 4 || overview.TotalFindings != 9 {
		t.Fatalf("unexpected overview: %+v", overview)
	}
	// The whitespace-only username is non-empty at the overview level.
	if overview.UniqueUsers != 2 {
		t.Fatalf("expected 2 unique users, got %d", overview.UniqueUsers)
	}
	stats := ComputeUserStats(rows)
	if !reflect.DeepEqual(stats.Names(), []string{"carol"}) {
		t.Fatalf("unexpected users: %v", stats.Names())
	}
	if stats.FindingsTotal() > overview.TotalFindings {
		t.Fatalf("user findings %d exceed total %d", stats.FindingsTotal(), overview.TotalFindings)
	}
}

func TestUserOrderIsFirstAppearance(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-01-01 10:00:00", "zed (1)", "", "A", "", "", "1", "SUCCESS"},
		[]string{"2025-01-01 10:00:01", "amy (2)", "", "A", "", "", "1", "SUCCESS"},
		[]string{"2025-01-01 10:00:02", "zed (1)", "", "B", "", "", "1", "SUCCESS"},
		[]string{"2025-01-01 10:00:03", "mia-automated (3)", "", "C", "", "", "1", "SUCCESS"},
	)
	stats := ComputeUserStats(rows)
	if !reflect.DeepEqual(stats.Names(), []string{"zed", "amy", "mia-automated"}) {
		t.Fatalf("unexpected order: %v", stats.Names())
	}
	var names []string
	for name, stat := range stats.All() {
		names = append(names, name)
		if name == "mia-automated" && !stat.IsBot {
			t.Fatal("expected automated user to be a bot")
		}
	}
	if len(names) != 3 || len(stats.List()) != 3 {
		t.Fatalf("unexpected iteration result: %v", names)
	}
	overview := ComputeOverview(rows)
	if stats.FindingsTotal() != overview.TotalFindings {
		t.Fatalf("findings should match when all rows have users: %d vs %d", stats.FindingsTotal(), overview.TotalFindings)
	}
}

func TestComplianceScore(t *testing.T) {
	cases := []struct {
		successful, total, want int
	}{
		{0, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{7, 5, 100},
		{-1, 5, 0},
	}
	for _, tc := range cases {
		if got := ComplianceScore(tc.successful, tc.total); got != tc.want {
			t.Errorf("ComplianceScore(%d, %d) = %d, want %d", tc.successful, tc.total, got, tc.want)
		}
	}
}

func TestStatusBreakdownAndScoreRange(t *testing.T) {
	rows := rowsFrom(
		[]string{"t1", "a (1)", "", "", "", "", "", "SUCCESS"},
		[]string{"t2", "a (1)", "", "", "", "", "", "WARNING"},
		[]string{"t3", "a (1)", "", "", "", "", "", "ERROR"},
		[]string{"t4", "a (1)", "", "", "", "", "", "TIMEOUT"},
		[]string{"t5", "a (1)", "", "", "", "", "", ""},
	)
	got := ComputeStatusBreakdown(rows)
	want := StatusBreakdown{Success: 1, Warning: 1, Error: 1, Unknown: 2}
	if got != want {
		t.Fatalf("unexpected breakdown: %+v", got)
	}
	overview := ComputeOverview(rows)
	if overview.ComplianceScore != 20 {
		t.Fatalf("unexpected score: %d", overview.ComplianceScore)
	}
	if overview.TotalScans != len(rows)-1 {
		t.Fatalf("total scans should equal data rows: %d", overview.TotalScans)
	}
}

func TestIdempotent(t *testing.T) {
	rows := rowsFrom(
		[]string{"2025-01-01 10:00:00", "alice (A1)", "scan.sh", "X", "/srv", "1s", "2", "SUCCESS"},
		[]string{"2025-01-01 09:00:00", "ci-bot (S1)", "scan.sh", "Y", "/srv", "1s", "3", "WARNING"},
	)
	if ComputeOverview(rows) != ComputeOverview(rows) {
		t.Fatal("overview should be deterministic")
	}
	first := ComputeUserStats(rows).List()
	second := ComputeUserStats(rows).List()
	if len(first) != len(second) {
		t.Fatal("user stats length changed between calls")
	}
	for i := range first {
		a, b := *first[i], *second[i]
		if a.Username != b.Username || a.ScanCount != b.ScanCount || a.LastActive != b.LastActive ||
			a.FindingsTotal != b.FindingsTotal || a.IsBot != b.IsBot || !reflect.DeepEqual(a.Tools, b.Tools) {
			t.Fatalf("user stats differ between calls: %+v vs %+v", a, b)
		}
	}
}
