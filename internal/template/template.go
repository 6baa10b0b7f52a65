// Package template holds the predefined procedure templates for common
// server management scenarios. Templates are pure data: a named, ordered set
// of tasks with dependency edges.
package template

import (
	"github.com/scarecr0w12/ai-server-management/internal/model"
)

// registry maps template names to their task factories. Factories return
// fresh slices so callers can never mutate a template in place.
var registry = map[string]func() []model.Task{
	"web_server_diagnostic": WebServerDiagnostic,
	"system_health_check":   SystemHealthCheck,
	"security_audit":        SecurityAudit,
}

// Tasks returns the ordered task list for the named template. The second
// return value is false when the template name is unknown.
func Tasks(name string) ([]model.Task, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names returns the names of all registered templates.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// WebServerDiagnostic is a comprehensive web server diagnostic procedure.
func WebServerDiagnostic() []model.Task {
	return []model.Task{
		{
			ID:          "check_service_status",
			Type:        model.TaskTypeDiagnostic,
			Name:        "Check Web Server Status",
			Description: "Verify if web server process is running",
			Command:     "systemctl status apache2 nginx",
			MaxRetries:  3,
		},
		{
			ID:           "check_ports",
			Type:         model.TaskTypeDiagnostic,
			Name:         "Check Port Availability",
			Description:  "Verify web server ports are listening",
			Command:      "netstat -tlnp | grep ':80\\|:443'",
			Dependencies: []string{"check_service_status"},
			MaxRetries:   3,
		},
		{
			ID:           "check_logs",
			Type:         model.TaskTypeAnalysis,
			Name:         "Analyze Error Logs",
			Description:  "Review recent error logs for issues",
			Command:      "tail -n 50 /var/log/apache2/error.log /var/log/nginx/error.log",
			Dependencies: []string{"check_service_status"},
			MaxRetries:   3,
		},
		{
			ID:           "test_connectivity",
			Type:         model.TaskTypeDiagnostic,
			Name:         "Test Web Connectivity",
			Description:  "Test HTTP/HTTPS connectivity",
			Command:      "curl -I localhost && curl -Ik https://localhost",
			Dependencies: []string{"check_ports"},
			MaxRetries:   3,
		},
	}
}

// SystemHealthCheck is a general system health diagnostic procedure.
func SystemHealthCheck() []model.Task {
	return []model.Task{
		{
			ID:          "check_disk_space",
			Type:        model.TaskTypeMonitoring,
			Name:        "Check Disk Usage",
			Description: "Monitor disk space across all partitions",
			Command:     "df -h",
			MaxRetries:  3,
		},
		{
			ID:          "check_memory",
			Type:        model.TaskTypeMonitoring,
			Name:        "Check Memory Usage",
			Description: "Monitor system memory and swap usage",
			Command:     "free -h && ps aux --sort=-%mem | head -10",
			MaxRetries:  3,
		},
		{
			ID:          "check_cpu",
			Type:        model.TaskTypeMonitoring,
			Name:        "Check CPU Usage",
			Description: "Monitor CPU usage and load average",
			Command:     "top -bn1 | head -20 && uptime",
			MaxRetries:  3,
		},
		{
			ID:           "check_processes",
			Type:         model.TaskTypeAnalysis,
			Name:         "Analyze Running Processes",
			Description:  "Review critical system processes",
			Command:      "ps aux | grep -E 'ssh|cron|systemd' | head -10",
			Dependencies: []string{"check_cpu"},
			MaxRetries:   3,
		},
	}
}

// SecurityAudit is a security-focused diagnostic procedure.
func SecurityAudit() []model.Task {
	return []model.Task{
		{
			ID:          "check_failed_logins",
			Type:        model.TaskTypeAnalysis,
			Name:        "Check Failed Login Attempts",
			Description: "Review authentication failures",
			Command:     "journalctl -u ssh --since='1 hour ago' | grep -i failed",
			MaxRetries:  3,
		},
		{
			ID:          "check_open_ports",
			Type:        model.TaskTypeDiagnostic,
			Name:        "Scan Open Ports",
			Description: "List all listening network services",
			Command:     "netstat -tlnp",
			MaxRetries:  3,
		},
		{
			ID:          "check_updates",
			Type:        model.TaskTypeMonitoring,
			Name:        "Check Security Updates",
			Description: "Review available security patches",
			Command:     "apt list --upgradable 2>/dev/null | grep -i security || yum check-update --security",
			MaxRetries:  3,
		},
	}
}
