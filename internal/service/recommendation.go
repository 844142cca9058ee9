package service

import (
	"teacherdev_backend/internal/model"
)

// microPDCatalog lists the remediation modules offered for each domain, in
// the order they should be taken.
var microPDCatalog = map[model.DomainKey][]string{
	model.DomainClassroomManagement:       {"MPD-CM-01", "MPD-CM-02"},
	model.DomainInstructionalPlanning:     {"MPD-IP-01", "MPD-IP-02"},
	model.DomainStudentEngagement:         {"MPD-SE-01", "MPD-SE-02"},
	model.DomainAssessmentFeedback:        {"MPD-AF-01", "MPD-AF-02"},
	model.DomainSubjectKnowledge:          {"MPD-SK-01"},
	model.DomainInclusivePractice:         {"MPD-INC-01", "MPD-INC-02"},
	model.DomainDigitalPedagogy:           {"MPD-DP-01", "MPD-DP-02"},
	model.DomainProfessionalCollaboration: {"MPD-PC-01"},
}

type RecommendationMapper struct {
	catalog map[model.DomainKey][]string
}

// NewRecommendationMapper uses the built-in catalog when catalog is nil.
func NewRecommendationMapper(catalog map[model.DomainKey][]string) *RecommendationMapper {
	if catalog == nil {
		catalog = microPDCatalog
	}
	return &RecommendationMapper{catalog: catalog}
}

// Recommend returns the modules for the given gap domains, deduplicated and in
// first-seen order. Unknown domains contribute nothing.
func (m *RecommendationMapper) Recommend(gaps []model.DomainKey) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, d := range gaps {
		for _, id := range m.catalog[d] {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
