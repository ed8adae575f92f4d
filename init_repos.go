package main

import (
	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/repository"
)

// Repositories holds every repository instance.
type Repositories struct {
	Conversation repository.ConversationRepository
	Message      repository.MessageRepository
	Negotiation  repository.NegotiationRepository
	ReadReceipt  repository.ReadReceiptRepository
	Meetup       repository.MeetupRepository
}

func initRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Conversation: repository.NewSQLiteConversationRepo(db.Conn),
		Message:      repository.NewSQLiteMessageRepo(db.Conn),
		Negotiation:  repository.NewSQLiteNegotiationRepo(db.Conn),
		ReadReceipt:  repository.NewSQLiteReadReceiptRepo(db.Conn),
		Meetup:       repository.NewSQLiteMeetupRepo(db.Conn),
	}
}
