package main

import (
	"context"
	"fmt"
	"log"

	"github.com/quocanhngo/chatrelay/internal/config"
	"github.com/quocanhngo/chatrelay/internal/database"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/repository"
	"github.com/quocanhngo/chatrelay/internal/service"
	"gorm.io/gorm/logger"
)

func main() {
	// Load config
	cfg := config.Load()

	// Force DB logging off to avoid noise
	db, err := database.Open(cfg.DB, logger.Default.LogMode(logger.Silent))
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	log.Println("✅ Connected to Database")

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}

	identityRepo := repository.NewIdentityRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	identities := service.NewIdentityService(identityRepo, nil, cfg.DB.Timeout)
	chat := service.NewChatService(identityRepo, messageRepo, nil, nil, service.ChatOptions{
		MaxMessageLength: cfg.Relay.MaxMessageLength,
		StoreTimeout:     cfg.DB.Timeout,
	})

	ctx := context.Background()

	// Create 10 device identities
	log.Println("🌱 Seeding 10 devices...")

	ids := make([]uint64, 0, 10)
	for i := 1; i <= 10; i++ {
		deviceKey := fmt.Sprintf("demo-device-%02d", i)
		res, err := identities.Resolve(ctx, deviceKey, model.DeviceInfo{
			DeviceModel: "Seeder",
			OSVersion:   "1.0",
			AppVersion:  "1.0.0",
		}, false)
		if err != nil {
			log.Printf("❌ Failed to create device %s: %v", deviceKey, err)
			continue
		}
		ids = append(ids, res.Identity.ID)
		if res.IsNew {
			log.Printf("✅ Created device: %s | user_id: %d", deviceKey, res.Identity.ID)
		} else {
			log.Printf("🔄 Device already present: %s | user_id: %d", deviceKey, res.Identity.ID)
		}
	}

	seedConversation(ctx, chat, ids)

	log.Println("🎉 Seeding completed!")
}

func seedConversation(ctx context.Context, chat *service.ChatService, ids []uint64) {
	if len(ids) < 2 {
		return
	}
	a, b := ids[0], ids[1]

	existing, err := chat.GetConversation(ctx, a, b, 1)
	if err != nil || len(existing) > 0 {
		return
	}

	lines := []struct {
		from, to uint64
		text     string
	}{
		{a, b, "Hey, welcome to ChatRelay! 🚀"},
		{b, a, "Thanks! Messages show up even when you're offline?"},
		{a, b, "Yep, they're stored and you fetch them when you're back."},
	}
	for _, line := range lines {
		if _, err := chat.Send(ctx, service.SendInput{SenderID: line.from, ReceiverID: line.to, Text: line.text}); err != nil {
			log.Printf("❌ Failed to seed message: %v", err)
			return
		}
	}

	log.Printf("✅ Created demo conversation between users %d and %d", a, b)
}
