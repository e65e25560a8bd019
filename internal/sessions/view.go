package sessions

import (
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// StoreSettingsView is the public slice of store configuration a joining
// device needs to render menus and totals.
type StoreSettingsView struct {
	StoreID            uuid.UUID         `json:"store_id"`
	Name               string            `json:"name"`
	DefaultLanguage    string            `json:"default_language"`
	SupportedLanguages []string          `json:"supported_languages"`
	TaxIncluded        bool              `json:"tax_included"`
	ConfirmMode        enums.ConfirmMode `json:"confirm_mode"`
}

func settingsFromStore(store *models.Store) StoreSettingsView {
	return StoreSettingsView{
		StoreID:            store.ID,
		Name:               store.Name,
		DefaultLanguage:    store.DefaultLanguage,
		SupportedLanguages: []string(store.SupportedLanguages),
		TaxIncluded:        store.TaxIncluded,
		ConfirmMode:        store.ConfirmMode,
	}
}

// ParticipantView is a participant as exposed to clients. The fingerprint
// hash stays server side.
type ParticipantView struct {
	ID           uuid.UUID             `json:"id"`
	Role         enums.ParticipantRole `json:"role"`
	Nickname     string                `json:"nickname"`
	Language     string                `json:"language"`
	DisplayColor string                `json:"display_color"`
}

func participantView(p *models.Participant) ParticipantView {
	return ParticipantView{
		ID:           p.ID,
		Role:         p.Role,
		Nickname:     p.Nickname,
		Language:     p.Language,
		DisplayColor: p.DisplayColor,
	}
}

// SessionView is session state as exposed to clients.
type SessionView struct {
	ID                uuid.UUID           `json:"id"`
	StoreID           uuid.UUID           `json:"store_id"`
	TableID           uuid.UUID           `json:"table_id"`
	Status            enums.SessionStatus `json:"status"`
	CurrentRoundNo    int                 `json:"current_round_no"`
	ParticipantsCount int                 `json:"participants_count"`
	Participants      []ParticipantView   `json:"participants,omitempty"`
}

func sessionView(session *models.TableSession) SessionView {
	view := SessionView{
		ID:                session.ID,
		StoreID:           session.StoreID,
		TableID:           session.TableID,
		Status:            session.Status,
		CurrentRoundNo:    session.CurrentRoundNo,
		ParticipantsCount: session.ParticipantsCount,
	}
	for i := range session.Participants {
		view.Participants = append(view.Participants, participantView(&session.Participants[i]))
	}
	return view
}
