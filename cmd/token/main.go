package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/rechargecodes-backend/pkg/auth"
	"github.com/angelmondragon/rechargecodes-backend/pkg/config"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "token"})

	role := flag.String("role", string(enums.MemberRoleAdmin), "operator role (admin|master_reseller|reseller)")
	userFlag := flag.String("user", "", "operator user id (random when empty)")
	resellerFlag := flag.String("reseller", "", "reseller id, required for non-admin sellers")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	token, err := mint(cfg.JWT, time.Now(), *role, *userFlag, *resellerFlag)
	if err != nil {
		logg.Error(context.Background(), "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(cfg config.JWTConfig, now time.Time, rawRole, rawUser, rawReseller string) (string, error) {
	role, err := enums.ParseMemberRole(rawRole)
	if err != nil {
		return "", err
	}

	userID := uuid.New()
	if rawUser != "" {
		if userID, err = uuid.Parse(rawUser); err != nil {
			return "", fmt.Errorf("invalid user id: %w", err)
		}
	}

	payload := auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	}
	if rawReseller != "" {
		resellerID, err := uuid.Parse(rawReseller)
		if err != nil {
			return "", fmt.Errorf("invalid reseller id: %w", err)
		}
		payload.ResellerID = &resellerID
	}

	return auth.MintAccessToken(cfg, now, payload)
}
