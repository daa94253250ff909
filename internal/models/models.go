package models

// All lists every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Server{},
		&ServerRole{},
		&ServerMember{},
		&Channel{},
		&Message{},
		&DirectMessage{},
		&Attachment{},
		&PinnedMessage{},
		&Mention{},
	}
}
