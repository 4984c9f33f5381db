package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexushq/nexushub/internal/nexusconfig"
	"github.com/nexushq/nexushub/pkg/output"
)

var statusToken string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running hub",
	Long:  "Queries a running hub's administrative API for server and client status and prints summary tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusToken, "token", "", "bearer token for the admin API")
}

type serverStatusDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	Retries   int    `json:"retries"`
	LastError string `json:"last_error"`
	ExitCode  int    `json:"exit_code"`
	ExitTime  int64  `json:"exit_time"`
}

type clientStatusDTO struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Servers     []string `json:"servers"`
	ConnectedAt int64    `json:"connected_at"`
}

func runStatus() error {
	cfg, err := nexusconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	printer := output.New()
	client := &http.Client{Timeout: 5 * time.Second}
	baseURL := "http://" + cfg.Network.AdminAddr + "/api"

	var health struct {
		Status string `json:"status"`
	}
	if err := getJSON(client, baseURL+"/monitoring/health", "", &health); err != nil {
		return fmt.Errorf("querying hub health (is it running on %s?): %w", cfg.Network.AdminAddr, err)
	}
	printer.Info("hub status", "status", health.Status)

	var serversResp struct {
		Servers []serverStatusDTO `json:"servers"`
	}
	if err := getJSON(client, baseURL+"/servers", statusToken, &serversResp); err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	summaries := make([]output.ServerSummary, 0, len(serversResp.Servers))
	for _, s := range serversResp.Servers {
		status := "stopped"
		switch {
		case s.Running && s.Connected:
			status = "running"
		case s.Running && !s.Connected:
			status = "pending"
		}
		exitTime := ""
		if s.ExitTime > 0 {
			exitTime = formatDuration(time.Since(time.Unix(s.ExitTime, 0)))
		}
		summaries = append(summaries, output.ServerSummary{
			ID:        s.ID,
			Name:      s.Name,
			Transport: s.Transport,
			Status:    status,
			Retries:   s.Retries,
			LastError: s.LastError,
			ExitCode:  s.ExitCode,
			ExitTime:  exitTime,
		})
	}
	printer.Servers(summaries)

	var clientsResp struct {
		Clients []clientStatusDTO `json:"clients"`
	}
	if err := getJSON(client, baseURL+"/mcp-clients", statusToken, &clientsResp); err != nil {
		return fmt.Errorf("listing clients: %w", err)
	}

	clientSummaries := make([]output.ClientSummary, 0, len(clientsResp.Clients))
	for _, c := range clientsResp.Clients {
		connected := ""
		if c.ConnectedAt > 0 {
			connected = formatDuration(time.Since(time.Unix(c.ConnectedAt, 0)))
		}
		clientSummaries = append(clientSummaries, output.ClientSummary{
			ID:        c.ID,
			Status:    c.Status,
			Servers:   len(c.Servers),
			Connected: connected,
		})
	}
	printer.Clients(clientSummaries)

	return nil
}

func getJSON(client *http.Client, url, token string, v any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != 429 && resp.StatusCode != 503 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
	return fmt.Sprintf("%d days ago", int(d.Hours()/24))
}
