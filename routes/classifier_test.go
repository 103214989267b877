package routes

import (
	"sync"
	"testing"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()

	c, err := NewClassifier(Table{
		Exact: map[string]Class{
			"/":                     Public,
			"/about":                Public,
			"/pricing":              Public,
			"/auth/signin":          PublicWithBackgroundCheck,
			"/auth/signup":          PublicWithBackgroundCheck,
			"/auth/forgot-password": Public,
		},
		PublicPrefixes: []Rule{
			{Prefix: "/courses", Class: PublicWithBackgroundCheck},
			{Prefix: "/users/public-courses", Class: Public},
			{Prefix: "/preview", Class: Public},
		},
		ProtectedPrefixes: []string{"/users", "/admin", "/studio", "/settings"},
	})
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	return c
}

func TestClassifyPrecedence(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		path string
		want Class
	}{
		{"/", Public},
		{"/about", Public},
		{"/auth/signin", PublicWithBackgroundCheck},
		{"/courses", PublicWithBackgroundCheck},
		{"/courses/go-basics/lesson/3", PublicWithBackgroundCheck},
		{"/users/dashboard", Protected},
		{"/users", Protected},
		{"/admin/reports", Protected},
		{"/settings/billing", Protected},
		// Public prefix beats the protected prefix covering the same path.
		{"/users/public-courses", Public},
		{"/users/public-courses/go-basics", Public},
		// Unlisted paths default to public.
		{"/blog/2026/01/launch", Public},
		{"/terms", Public},
		// Whole-segment matching: a protected prefix never bleeds into a sibling.
		{"/usersettings", Public},
		// Query and fragment are not part of the route identity.
		{"/users/dashboard?tab=grades", Protected},
		{"/courses/go-basics#syllabus", PublicWithBackgroundCheck},
		// Trailing slash does not change the class.
		{"/users/dashboard/", Protected},
		{"", Public},
	}

	for _, tc := range cases {
		if got := c.Classify(tc.path); got != tc.want {
			t.Fatalf("Classify(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := newTestClassifier(t)

	const rounds = 200
	for i := 0; i < rounds; i++ {
		if got := c.Classify("/users/dashboard"); got != Protected {
			t.Fatalf("round %d: Classify drifted to %v", i, got)
		}
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	results := make(chan Class, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			results <- c.Classify("/courses/concurrency")
		}()
	}
	wg.Wait()
	close(results)

	for got := range results {
		if got != PublicWithBackgroundCheck {
			t.Fatalf("concurrent Classify = %v, want %v", got, PublicWithBackgroundCheck)
		}
	}
}

func TestNewClassifierRejectsBadPrefixes(t *testing.T) {
	if _, err := NewClassifier(Table{ProtectedPrefixes: []string{""}}); err != ErrEmptyPrefix {
		t.Fatalf("empty prefix: got %v, want %v", err, ErrEmptyPrefix)
	}
	if _, err := NewClassifier(Table{PublicPrefixes: []Rule{{Prefix: "courses"}}}); err != ErrPrefixNotRooted {
		t.Fatalf("unrooted prefix: got %v, want %v", err, ErrPrefixNotRooted)
	}
}

func TestLongestPrefixWins(t *testing.T) {
	c, err := NewClassifier(Table{
		PublicPrefixes: []Rule{
			{Prefix: "/app/help", Class: Public},
			{Prefix: "/app/help/account", Class: PublicWithBackgroundCheck},
		},
		ProtectedPrefixes: []string{"/app"},
	})
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}

	if got := c.Classify("/app/help/account/reset"); got != PublicWithBackgroundCheck {
		t.Fatalf("longest prefix lost: got %v", got)
	}
	if got := c.Classify("/app/help/search"); got != Public {
		t.Fatalf("shorter public prefix lost: got %v", got)
	}
	if got := c.Classify("/app/grades"); got != Protected {
		t.Fatalf("protected fallback lost: got %v", got)
	}
}

func TestClassString(t *testing.T) {
	if Public.String() != "public" || Protected.String() != "protected" {
		t.Fatalf("unexpected class labels: %q %q", Public.String(), Protected.String())
	}
	if PublicWithBackgroundCheck.String() != "public_background_check" {
		t.Fatalf("unexpected background label: %q", PublicWithBackgroundCheck.String())
	}
	if Class(99).String() != "unknown" {
		t.Fatalf("unexpected label for out-of-range class")
	}
}
