package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Firebase bundles the clients of one Firebase project.
type Firebase struct {
	Firestore *firestore.Client
	Auth      *auth.Client
}

// Close releases the Firestore client.
func (f *Firebase) Close() error {
	if f == nil || f.Firestore == nil {
		return nil
	}
	return f.Firestore.Close()
}

// ConnectFirebase initializes the Firebase app. When credentialsFile is empty
// application default credentials are used.
func ConnectFirebase(ctx context.Context, projectID, credentialsFile string) (*Firebase, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project must not be empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Firebase{Firestore: firestoreClient, Auth: authClient}, nil
}
