package domain

// EntryPoint is the channel a respondent arrived through. It doubles as the
// source channel recorded on events, consents and participations.
type EntryPoint string

const (
	EntryWeb            EntryPoint = "web"
	EntryPWA            EntryPoint = "pwa"
	EntryTelegramWebApp EntryPoint = "telegram_webapp"
	EntryTelegramBot    EntryPoint = "telegram_bot"
	EntryAPI            EntryPoint = "api"
	EntrySystem         EntryPoint = "system"
)

var knownEntryPoints = map[EntryPoint]bool{
	EntryWeb:            true,
	EntryPWA:            true,
	EntryTelegramWebApp: true,
	EntryTelegramBot:    true,
	EntryAPI:            true,
	EntrySystem:         true,
}

// IsValid reports whether e is a known channel.
func (e EntryPoint) IsValid() bool {
	return knownEntryPoints[e]
}

// OrDefault returns e, or fallback when e is empty or unknown.
func (e EntryPoint) OrDefault(fallback EntryPoint) EntryPoint {
	if e.IsValid() {
		return e
	}
	return fallback
}

func (e EntryPoint) String() string { return string(e) }
