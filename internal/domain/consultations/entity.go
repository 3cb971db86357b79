package consultations

import "time"

type ID string

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Consultation links an analysis to a specialist a doctor asked for a second read.
type Consultation struct {
	ID                 ID        `json:"id"`
	AnalysisID         string    `json:"analysis_id"`
	RequestingDoctorID string    `json:"requesting_doctor_id"`
	SpecialistID       string    `json:"specialist_id"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsParticipant reports whether userID may read or post in c.
func (c *Consultation) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.RequestingDoctorID || userID == c.SpecialistID)
}

// Message is one chat line inside a consultation.
type Message struct {
	ID             string    `json:"id"`
	ConsultationID ID        `json:"consultation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}
