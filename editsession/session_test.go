package editsession

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-registry/models"
	"paper-registry/storage"
)

var defaultRequired = []string{"title", "authors", "periodKey", "department", "indexingLabel"}

func newSession(t *testing.T, required ...string) *Session {
	t.Helper()
	if required == nil {
		required = defaultRequired
	}
	p, err := NewPolicy(required)
	require.NoError(t, err)
	return New(p, zap.NewNop())
}

func fill(t *testing.T, s *Session) {
	t.Helper()
	for name, v := range map[string]string{
		"title":         "X",
		"authors":       "A. Author, B. Author",
		"periodKey":     "2024-06",
		"department":    "Physics",
		"indexingLabel": "Scopus",
		"quartile":      "Q1",
	} {
		require.NoError(t, s.SetField(name, v))
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy([]string{" title ", "", "title", "primaryLink"})
	require.NoError(t, err)
	assert.Equal(t, append(append([]string{}, defaultRequired...), "primaryLink"), p.Required())

	_, err = NewPolicy([]string{"doi"})
	assert.ErrorIs(t, err, models.ErrUnknownField)
}

func TestPolicyBaseFieldsAlwaysRequired(t *testing.T) {
	for _, extra := range [][]string{nil, {}, {"primaryLink"}} {
		p, err := NewPolicy(extra)
		require.NoError(t, err)
		assert.Equal(t, defaultRequired, p.Required()[:len(defaultRequired)])

		var verr *ValidationError
		require.ErrorAs(t, p.Validate(models.Draft{PrimaryLink: "https://x.org"}), &verr, "extra=%v", extra)
		assert.Equal(t, "title", verr.Field)
		require.ErrorAs(t, p.Validate(models.BlankDraft()), &verr)
		assert.Equal(t, "title", verr.Field)
	}
}

func TestPolicyScopusIgnoresCase(t *testing.T) {
	p, err := NewPolicy(nil)
	require.NoError(t, err)
	d := models.Draft{
		Title: "T", Authors: "A", PeriodKey: "2024-06", Department: "Physics",
		Indexing: "scopus",
	}
	var verr *ValidationError
	require.ErrorAs(t, p.Validate(d), &verr)
	assert.Equal(t, "quartile", verr.Field)

	d.Quartile = "q1"
	require.NoError(t, p.Validate(d))
	assert.Equal(t, "Scopus (Q1)", d.Fields()[models.FieldIndexing])
}

func TestPolicyValidate(t *testing.T) {
	p, err := NewPolicy(defaultRequired)
	require.NoError(t, err)

	valid := models.Draft{
		Title: "X", Authors: "A", PeriodKey: "2024-06", Department: "Physics",
		Indexing: "Scopus", Quartile: "q2", Kind: "Journal", Status: "Accepted",
		PrimaryLink: "https://example.org/x",
	}
	require.NoError(t, p.Validate(valid))

	cases := []struct {
		name  string
		edit  func(d *models.Draft)
		field string
	}{
		{"missing title", func(d *models.Draft) { d.Title = "   " }, "title"},
		{"authors only separators", func(d *models.Draft) { d.Authors = " , ," }, "authors"},
		{"scopus without quartile", func(d *models.Draft) { d.Quartile = "" }, "quartile"},
		{"bad quartile", func(d *models.Draft) { d.Quartile = "Q5" }, "quartile"},
		{"other without custom department", func(d *models.Draft) { d.Department = models.DepartmentOther }, "department"},
		{"bad period", func(d *models.Draft) { d.PeriodKey = "2024/06" }, "periodKey"},
		{"bad kind", func(d *models.Draft) { d.Kind = "Book" }, "kind"},
		{"bad status", func(d *models.Draft) { d.Status = "Draft" }, "status"},
		{"bad link", func(d *models.Draft) { d.CertificateLink = "not a url" }, "certificateLink"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := valid
			tc.edit(&d)
			err := p.Validate(d)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	t.Run("non scopus needs no quartile", func(t *testing.T) {
		d := valid
		d.Indexing, d.Quartile = "IEEE", ""
		assert.NoError(t, p.Validate(d))
	})
	t.Run("link requiredness is configurable", func(t *testing.T) {
		strict, err := NewPolicy(append(append([]string{}, defaultRequired...), "primaryLink"))
		require.NoError(t, err)
		d := valid
		d.PrimaryLink = ""
		assert.NoError(t, p.Validate(d))
		assert.Error(t, strict.Validate(d))
	})
}

func TestSession_CreateFlow(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, StateIdle, s.State())
	assert.ErrorIs(t, s.SetField("title", "x"), ErrNotEditing)
	_, err := s.Submit()
	assert.ErrorIs(t, err, ErrNotEditing)

	require.NoError(t, s.BeginCreate())
	d, ok := s.Draft()
	require.True(t, ok)
	assert.Equal(t, "Journal", d.Kind)
	assert.Equal(t, "Published", d.Status)

	fill(t, s)
	pending, err := s.Submit()
	require.NoError(t, err)
	assert.True(t, pending.IsCreate())
	assert.Equal(t, StateSubmitting, s.State())
	assert.ErrorIs(t, s.SetField("title", "y"), ErrSubmitInFlight)
	assert.ErrorIs(t, s.BeginCreate(), ErrSubmitInFlight)

	assert.True(t, s.Resolve(pending.Seq, nil))
	assert.Equal(t, StateIdle, s.State())
	_, ok = s.Draft()
	assert.False(t, ok)
}

func TestSession_ValidationKeepsDraft(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.BeginCreate())
	require.NoError(t, s.SetField("title", "Only a title"))

	_, err := s.Submit()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "authors", verr.Field)

	v := s.View()
	assert.Equal(t, StateEditing, v.State)
	assert.Equal(t, "authors", v.Field)
	assert.NotEmpty(t, v.Message)
	require.NotNil(t, v.Draft)
	assert.Equal(t, "Only a title", v.Draft.Title)

	require.NoError(t, s.SetField("authors", "Someone"))
	assert.Empty(t, s.View().Message)
}

func TestSession_BeginEditSplitsIndexing(t *testing.T) {
	s := newSession(t)
	r := models.RawRecord{ID: "5", Fields: map[string]any{
		models.FieldTitle:      "X",
		models.FieldIndexing:   "Scopus (Q3)",
		models.FieldDepartment: "Robotics Lab",
	}}.Normalize()
	require.NoError(t, s.BeginEdit(r))
	d, _ := s.Draft()
	assert.Equal(t, "Scopus", d.Indexing)
	assert.Equal(t, "Q3", d.Quartile)
	assert.Equal(t, models.DepartmentOther, d.Department)
	assert.Equal(t, "Robotics Lab", d.DepartmentCustom)
	assert.Equal(t, "5", s.View().OriginalID)

	// last intent wins
	require.NoError(t, s.BeginCreate())
	assert.Empty(t, s.View().OriginalID)
}

func TestSession_FailureRetainsDraft(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.BeginEdit(models.Record{ID: "5", Title: "X"}))
	fill(t, s)
	pending, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, "5", pending.OriginalID)

	assert.True(t, s.Resolve(pending.Seq, storage.ErrNotFound))
	assert.Equal(t, StateError, s.State())
	assert.ErrorIs(t, s.Err(), storage.ErrNotFound)
	d, ok := s.Draft()
	require.True(t, ok)
	assert.Equal(t, pending.Draft, d)

	// Retry aus Error heraus
	retry, err := s.Submit()
	require.NoError(t, err)
	assert.Greater(t, retry.Seq, pending.Seq)
}

func TestSession_CancelDropsLateResult(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.BeginCreate())
	fill(t, s)
	pending, err := s.Submit()
	require.NoError(t, err)

	s.Cancel()
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Resolve(pending.Seq, errors.New("boom")))
	assert.Equal(t, StateIdle, s.State())
	assert.NoError(t, s.Err())
}
