package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Court is the reservation service's view of a court record.
type Court struct {
	ID           int64           `json:"id"`
	ClubID       int64           `json:"clubId"`
	Name         string          `json:"name"`
	PricePerHour decimal.Decimal `json:"pricePerHour"`
	IsActive     bool            `json:"isActive"`
}

// CourtAPI pulls court existence and pricing data.
type CourtAPI interface {
	FindCourt(ctx context.Context, id int64) (*Court, error)
}

// ClubAPI pulls club existence and the display name used on enrichment paths.
type ClubAPI interface {
	ClubExists(ctx context.Context, id int64) (bool, error)
	ClubName(ctx context.Context, id int64) (string, error)
}

// UserAPI pulls user existence and contact details for notifications.
type UserAPI interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	UserBasicInfo(ctx context.Context, id int64) (*UserInfo, error)
}

type UserInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CourtClient struct {
	httpClient
}

func NewCourtClient(baseURL string, timeout time.Duration) *CourtClient {
	return &CourtClient{newHTTPClient(baseURL, timeout)}
}

func (c *CourtClient) FindCourt(ctx context.Context, id int64) (*Court, error) {
	var court Court
	if err := c.get(ctx, fmt.Sprintf("/api/courts/%d", id), &court); err != nil {
		return nil, err
	}
	return &court, nil
}

type ClubClient struct {
	httpClient
}

func NewClubClient(baseURL string, timeout time.Duration) *ClubClient {
	return &ClubClient{newHTTPClient(baseURL, timeout)}
}

func (c *ClubClient) ClubExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := c.get(ctx, fmt.Sprintf("/api/clubs/%d/exists", id), &exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (c *ClubClient) ClubName(ctx context.Context, id int64) (string, error) {
	var club struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/clubs/%d", id), &club); err != nil {
		return "", err
	}
	return club.Name, nil
}

type UserClient struct {
	httpClient
}

func NewUserClient(baseURL string, timeout time.Duration) *UserClient {
	return &UserClient{newHTTPClient(baseURL, timeout)}
}

func (c *UserClient) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := c.get(ctx, fmt.Sprintf("/api/users/%d/exists", id), &exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (c *UserClient) UserBasicInfo(ctx context.Context, id int64) (*UserInfo, error) {
	var info UserInfo
	if err := c.get(ctx, fmt.Sprintf("/api/users/%d/basic-info", id), &info); err != nil {
		return nil, err
	}
	return &info, nil
}
