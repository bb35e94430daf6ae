package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreClient is the durable layer behind the per-conversation session
// storage: room links survive a cleared Assistant userStorage, and every
// emergency dispatch is logged for the internal audit endpoint.
type FirestoreClient struct {
	client *firestore.Client
}

type RoomLink struct {
	UserID   string    `firestore:"userId"`
	RoomID   string    `firestore:"roomId"`
	LinkedAt time.Time `firestore:"linkedAt"`
}

type Dispatch struct {
	UserID          string    `firestore:"userId"`
	RoomID          string    `firestore:"roomId"`
	HospitalName    string    `firestore:"hospitalName"`
	HospitalAddress string    `firestore:"hospitalAddress"`
	UserAddress     string    `firestore:"userAddress"`
	DurationTraffic string    `firestore:"durationTraffic"`
	Latitude        float64   `firestore:"latitude"`
	Longitude       float64   `firestore:"longitude"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func NewFirestoreClient(ctx context.Context, projectID string) (*FirestoreClient, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &FirestoreClient{client: client}, nil
}

func (fc *FirestoreClient) Close() error {
	return fc.client.Close()
}

// GetRoomLink returns the linked room id for a user, or "" when no link
// exists.
func (fc *FirestoreClient) GetRoomLink(ctx context.Context, userID string) (string, error) {
	doc, err := fc.client.Collection("roomLinks").Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", err
	}

	var link RoomLink
	if err := doc.DataTo(&link); err != nil {
		return "", err
	}
	return link.RoomID, nil
}

// SaveRoomLink persists a confirmed room link, last write wins.
func (fc *FirestoreClient) SaveRoomLink(ctx context.Context, userID, roomID string) error {
	link := &RoomLink{
		UserID:   userID,
		RoomID:   roomID,
		LinkedAt: time.Now(),
	}
	_, err := fc.client.Collection("roomLinks").Doc(userID).Set(ctx, link)
	return err
}

// LogDispatch records one completed emergency notification.
func (fc *FirestoreClient) LogDispatch(ctx context.Context, dispatch *Dispatch) error {
	dispatch.CreatedAt = time.Now()
	_, _, err := fc.client.Collection("dispatches").Add(ctx, dispatch)
	return err
}

// RecentDispatches returns the newest dispatch records, newest first.
func (fc *FirestoreClient) RecentDispatches(ctx context.Context, limit int) ([]*Dispatch, error) {
	docs, err := fc.client.Collection("dispatches").
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	var dispatches []*Dispatch
	for _, doc := range docs {
		var d Dispatch
		if err := doc.DataTo(&d); err != nil {
			continue
		}
		dispatches = append(dispatches, &d)
	}
	return dispatches, nil
}

// DeleteUserData removes the room link and every dispatch record for a
// user. Used by the delete-all-data flow after explicit confirmation.
func (fc *FirestoreClient) DeleteUserData(ctx context.Context, userID string) error {
	if _, err := fc.client.Collection("roomLinks").Doc(userID).Delete(ctx); err != nil {
		if status.Code(err) != codes.NotFound {
			return err
		}
	}

	docs, err := fc.client.Collection("dispatches").
		Where("userId", "==", userID).
		Documents(ctx).GetAll()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}
