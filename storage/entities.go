package storage

import (
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"cadence-api/domain"
)

// Entities use PartitionKey = user ID and RowKey = entity ID throughout, so
// every read stays inside one partition.

func decodePeriodEntity(data []byte) (domain.Period, error) {
	var raw struct {
		aztables.Entity
		Name                string `json:"Name"`
		StartDate           string `json:"StartDate"`
		EndDate             string `json:"EndDate"`
		TasksCount          int    `json:"TasksCount"`
		CompletedTasksCount int    `json:"CompletedTasksCount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Period{}, err
	}
	return domain.Period{
		ID:                  raw.RowKey,
		Name:                raw.Name,
		StartDate:           raw.StartDate,
		EndDate:             raw.EndDate,
		TasksCount:          raw.TasksCount,
		CompletedTasksCount: raw.CompletedTasksCount,
	}, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var raw struct {
		aztables.Entity
		PeriodID        string `json:"PeriodId"`
		ProjectID       string `json:"ProjectId"`
		Title           string `json:"Title"`
		Description     string `json:"Description"`
		Status          string `json:"Status"`
		Priority        string `json:"Priority"`
		StoryPoints     *int   `json:"StoryPoints"`
		TaskDate        string `json:"TaskDate"`
		Notes           string `json:"Notes"`
		LinkPullRequest string `json:"LinkPullRequest"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:              raw.RowKey,
		PeriodID:        raw.PeriodID,
		ProjectID:       raw.ProjectID,
		Title:           raw.Title,
		Description:     raw.Description,
		Status:          domain.Status(raw.Status),
		Priority:        domain.Priority(raw.Priority),
		StoryPoints:     raw.StoryPoints,
		TaskDate:        raw.TaskDate,
		Notes:           []byte(raw.Notes),
		LinkPullRequest: raw.LinkPullRequest,
	}, nil
}

func decodeProjectEntity(data []byte) (domain.Project, error) {
	var raw struct {
		aztables.Entity
		Name        string `json:"Name"`
		Description string `json:"Description"`
		Color       string `json:"Color"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Project{}, err
	}
	return domain.Project{
		ID:          raw.RowKey,
		Name:        raw.Name,
		Description: raw.Description,
		Color:       raw.Color,
	}, nil
}

type reportEntity struct {
	aztables.Entity
	PeriodID         string `json:"PeriodId"`
	Name             string `json:"Name"`
	CreatedAt        string `json:"CreatedAt"`
	ReportData       string `json:"ReportData"`
	TotalTasks       int    `json:"TotalTasks"`
	CompletedTasks   int    `json:"CompletedTasks"`
	TotalStoryPoints int    `json:"TotalStoryPoints"`
}

// encodeReportEntity flattens a report for table storage. The per-project
// groups are kept as one JSON document so the snapshot stays a single
// immutable record.
func encodeReportEntity(userID string, report domain.Report) ([]byte, error) {
	groups, err := json.Marshal(report.Groups)
	if err != nil {
		return nil, err
	}
	return json.Marshal(reportEntity{
		Entity: aztables.Entity{
			PartitionKey: userID,
			RowKey:       report.ID,
		},
		PeriodID:         report.PeriodID,
		Name:             report.Name,
		CreatedAt:        report.CreatedAt.UTC().Format(time.RFC3339Nano),
		ReportData:       string(groups),
		TotalTasks:       report.TotalTasks,
		CompletedTasks:   report.CompletedTasks,
		TotalStoryPoints: report.TotalStoryPoints,
	})
}

func decodeReportEntity(data []byte) (domain.Report, error) {
	var raw reportEntity
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Report{}, err
	}
	report := domain.Report{
		ID:               raw.RowKey,
		PeriodID:         raw.PeriodID,
		Name:             raw.Name,
		TotalTasks:       raw.TotalTasks,
		CompletedTasks:   raw.CompletedTasks,
		TotalStoryPoints: raw.TotalStoryPoints,
	}
	if raw.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err != nil {
			return domain.Report{}, err
		}
		report.CreatedAt = createdAt
	}
	if raw.ReportData != "" {
		if err := json.Unmarshal([]byte(raw.ReportData), &report.Groups); err != nil {
			return domain.Report{}, err
		}
	}
	return report, nil
}
