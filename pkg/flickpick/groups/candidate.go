package groups

import "github.com/mikepea/flickpick/pkg/flickpick/models"

// CandidateResponse is a candidate with its metadata flattened
type CandidateResponse struct {
	ID             uint     `json:"id"`
	Title          string   `json:"title"`
	Source         string   `json:"source"`
	Year           *int     `json:"year"`
	Description    string   `json:"description"`
	PosterURL      *string  `json:"poster_url"`
	Providers      []string `json:"providers"`
	RottenTomatoes *int     `json:"rotten_tomatoes"`
	Reason         string   `json:"reason"`
}

func NewCandidateResponse(m *models.MovieCandidate) CandidateResponse {
	meta := m.Metadata.Data()
	providers := meta.Providers
	if providers == nil {
		providers = []string{}
	}
	return CandidateResponse{
		ID:             m.ID,
		Title:          m.Title,
		Source:         m.Source,
		Year:           meta.Year,
		Description:    meta.Description,
		PosterURL:      meta.PosterURL,
		Providers:      providers,
		RottenTomatoes: meta.RottenTomatoes,
		Reason:         meta.Reason,
	}
}
