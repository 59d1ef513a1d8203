package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"bankid-auth/internal/auth/apiclient"
	"bankid-auth/internal/utils"
)

func listClients(ctx context.Context, store apiclient.Store, w io.Writer) error {
	clients, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range clients {
		status := "active"
		if !c.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(w, "<Client: %s - %s> %s\n", c.ID, c.Name, status)
	}
	return nil
}

func createClient(ctx context.Context, store apiclient.Store, name string, w io.Writer) error {
	secret, err := utils.RandomString(32)
	if err != nil {
		return err
	}
	c, err := store.Create(ctx, apiclient.APIClient{
		Name:     name,
		Secret:   secret,
		IsActive: true,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "client_id: %s\nclient_secret: %s\n", c.ID, c.Secret)
	return nil
}

func secretHash(ctx context.Context, store apiclient.Store, clientID string, now time.Time, asURL bool, w io.Writer) error {
	c, err := store.Get(ctx, clientID)
	if errors.Is(err, apiclient.ErrNotFound) {
		return fmt.Errorf("client %s does not exist", clientID)
	}
	if err != nil {
		return err
	}

	timestamp := strconv.FormatInt(now.Unix(), 10)
	hash := apiclient.SecretHash(c.Secret, timestamp)

	if asURL {
		fmt.Fprintln(w, url.Values{
			"client_id":     {c.ID},
			"client_secret": {hash},
			"timestamp":     {timestamp},
		}.Encode())
		return nil
	}
	fmt.Fprintf(w, "Secret hash: %s, timestamp: %s\n", hash, timestamp)
	return nil
}
