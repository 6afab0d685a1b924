package validation_test

import (
	"testing"

	"chapterd/models"
	"chapterd/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		title   models.Title
		wantErr string
	}{
		{
			name:  "valid with cached URL",
			title: models.Title{Slug: "foo", Sources: []models.Source{{Site: models.SiteAsura, URL: "https://asuracomic.net/series/foo-1a2b"}}},
		},
		{
			name:  "valid without URL",
			title: models.Title{Slug: "foo", Sources: []models.Source{{Site: "KunManga"}}},
		},
		{
			name:    "missing slug",
			title:   models.Title{Sources: []models.Source{{Site: models.SiteAsura}}},
			wantErr: "slug is required",
		},
		{
			name:    "slug with separator",
			title:   models.Title{Slug: "a/b", Sources: []models.Source{{Site: models.SiteAsura}}},
			wantErr: "plain directory name",
		},
		{
			name:    "no sources",
			title:   models.Title{Slug: "foo"},
			wantErr: "at least one source",
		},
		{
			name:    "unknown site",
			title:   models.Title{Slug: "foo", Sources: []models.Source{{Site: "mangadex"}}},
			wantErr: "unknown site",
		},
		{
			name:    "duplicate site",
			title:   models.Title{Slug: "foo", Sources: []models.Source{{Site: models.SiteYaksha}, {Site: models.SiteYaksha}}},
			wantErr: "listed twice",
		},
		{
			name:    "relative URL",
			title:   models.Title{Slug: "foo", Sources: []models.Source{{Site: models.SiteYaksha, URL: "/manga/foo"}}},
			wantErr: "must be http or https",
		},
		{
			name:    "disabled site",
			title:   models.Title{Slug: "foo", Sources: []models.Source{{Site: models.SiteReadKingdom}}},
			wantErr: "is disabled",
		},
	}

	enabled := func(s models.Site) bool { return s != models.SiteReadKingdom }
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validation.ValidateTitle(tt.title, enabled)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFilterValidNormalisesSites(t *testing.T) {
	t.Parallel()

	valid, problems := validation.FilterValid([]models.Title{
		{Slug: "foo", Sources: []models.Source{{Site: " KunManga "}}},
		{Slug: "bar"},
	}, nil)

	require.Len(t, valid, 1)
	assert.Equal(t, models.SiteKunManga, valid[0].Sources[0].Site)
	require.Len(t, problems, 1)

	var te *validation.TitleError
	require.ErrorAs(t, problems[0], &te)
	assert.Equal(t, "bar", te.Slug)
}
