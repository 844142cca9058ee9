package model

// DomainKey identifies a competency area. Questions, domain scores and
// recommendations are all keyed by it.
type DomainKey string

const (
	DomainClassroomManagement       DomainKey = "classroom_management"
	DomainInstructionalPlanning     DomainKey = "instructional_planning"
	DomainStudentEngagement         DomainKey = "student_engagement"
	DomainAssessmentFeedback        DomainKey = "assessment_feedback"
	DomainSubjectKnowledge          DomainKey = "subject_knowledge"
	DomainInclusivePractice         DomainKey = "inclusive_practice"
	DomainDigitalPedagogy           DomainKey = "digital_pedagogy"
	DomainProfessionalCollaboration DomainKey = "professional_collaboration"
)

var domainNames = map[DomainKey]string{
	DomainClassroomManagement:       "Classroom Management",
	DomainInstructionalPlanning:     "Instructional Planning",
	DomainStudentEngagement:         "Student Engagement",
	DomainAssessmentFeedback:        "Assessment & Feedback",
	DomainSubjectKnowledge:          "Subject Knowledge",
	DomainInclusivePractice:         "Inclusive Practice",
	DomainDigitalPedagogy:           "Digital Pedagogy",
	DomainProfessionalCollaboration: "Professional Collaboration",
}

func (d DomainKey) Valid() bool {
	_, ok := domainNames[d]
	return ok
}

// DisplayName falls back to the raw key for domains outside the catalog.
func (d DomainKey) DisplayName() string {
	if n, ok := domainNames[d]; ok {
		return n
	}
	return string(d)
}
