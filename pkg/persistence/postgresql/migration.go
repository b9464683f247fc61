package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				trigger_data JSONB DEFAULT '{}',
				step_results JSONB DEFAULT '{}',
				variables JSONB DEFAULT '{}',
				error_message TEXT,
				metrics JSONB DEFAULT '{}',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
		`,
		2: `
			CREATE TABLE notifications (
				id VARCHAR(255) PRIMARY KEY,
				template_id VARCHAR(255) NOT NULL,
				indicator_id VARCHAR(255),
				severity VARCHAR(50) NOT NULL,
				recipients JSONB DEFAULT '[]',
				channel_ids JSONB DEFAULT '[]',
				context JSONB DEFAULT '{}',
				attempts JSONB DEFAULT '[]',
				escalation_level INT NOT NULL DEFAULT 0,
				ack JSONB DEFAULT '{}',
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_notifications_template_id ON notifications(template_id);
			CREATE INDEX idx_notifications_indicator_id ON notifications(indicator_id);
			CREATE INDEX idx_notifications_severity ON notifications(severity);
			CREATE INDEX idx_notifications_sent_at ON notifications(sent_at);
		`,
	}
}
