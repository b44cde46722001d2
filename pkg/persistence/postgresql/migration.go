package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create flow_versions table
			CREATE TABLE flow_versions (
				flow_version_id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				account_id VARCHAR(255) NOT NULL,
				flow_version_name VARCHAR(255) NOT NULL DEFAULT '',
				flow_definition JSONB NOT NULL,
				published BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_flow_versions_flow_id ON flow_versions(flow_id);

			-- Create tasks table
			CREATE TABLE tasks (
				task_id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				flow_id VARCHAR(255) NOT NULL,
				flow_version_id VARCHAR(255) NOT NULL,
				flow_version_name VARCHAR(255) NOT NULL DEFAULT '',
				trigger_id VARCHAR(255) NOT NULL DEFAULT '',
				trigger_session_id VARCHAR(255) NOT NULL DEFAULT '',
				flow_session_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				plugin_id VARCHAR(255),
				stage VARCHAR(50) NOT NULL CHECK (stage IN ('testing', 'production')),
				task_status VARCHAR(50) NOT NULL CHECK (task_status IN ('pending', 'processing', 'completed', 'error', 'cancelled')),
				is_trigger BOOLEAN NOT NULL DEFAULT false,
				processing_order INT NOT NULL DEFAULT 0,
				config JSONB NOT NULL DEFAULT '{}',
				result JSONB,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				started_at TIMESTAMP WITH TIME ZONE,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_tasks_pending ON tasks(task_status, stage, created_at);
			CREATE INDEX idx_tasks_flow_session ON tasks(flow_session_id, processing_order);
			CREATE UNIQUE INDEX idx_tasks_session_order ON tasks(flow_session_id, processing_order);
		`,
		2: `
			-- Auth providers and the accounts connected through them
			CREATE TABLE auth_providers (
				auth_provider_id VARCHAR(255) PRIMARY KEY,
				client_id VARCHAR(255) NOT NULL DEFAULT '',
				client_secret TEXT NOT NULL DEFAULT '',
				token_url TEXT NOT NULL DEFAULT '',
				scopes TEXT[] NOT NULL DEFAULT '{}'
			);

			CREATE TABLE account_auth_provider_accounts (
				account_auth_provider_account_id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				auth_provider_id VARCHAR(255) NOT NULL,
				account_auth_provider_account_slug VARCHAR(255) NOT NULL,
				access_token TEXT NOT NULL DEFAULT '',
				refresh_token TEXT NOT NULL DEFAULT '',
				token_type VARCHAR(50) NOT NULL DEFAULT '',
				access_token_expires_at TIMESTAMP WITH TIME ZONE,
				account_details JSONB,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE(account_id, account_auth_provider_account_slug)
			);

			CREATE INDEX idx_auth_accounts_account_id ON account_auth_provider_accounts(account_id);
		`,
		3: `
			-- Cron schedules that fire flow triggers
			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				flow_id VARCHAR(255) NOT NULL,
				flow_version_id VARCHAR(255) NOT NULL REFERENCES flow_versions(flow_version_id),
				stage VARCHAR(50) NOT NULL CHECK (stage IN ('testing', 'production')),
				cron_expression VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_schedules_active ON schedules(active);
		`,
	}
}
