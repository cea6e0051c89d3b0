package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow graphs
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				slug VARCHAR(128) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'inactive', 'paused')),
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_workflows_slug ON workflows(slug) WHERE deleted_at IS NULL;
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				sort_order INTEGER NOT NULL,
				node_type VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB,
				data JSONB,
				continue_on_error BOOLEAN NOT NULL DEFAULT false,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_type ON workflow_nodes(node_type);

			CREATE TABLE workflow_edges (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				sort_order INTEGER NOT NULL,
				id VARCHAR(255) NOT NULL DEFAULT '',
				source VARCHAR(255) NOT NULL,
				target VARCHAR(255) NOT NULL,
				PRIMARY KEY (workflow_id, sort_order)
			);
		`,
		2: `
			-- Execution records, scheduled jobs and dead letters
			CREATE TABLE executions (
				execution_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_slug VARCHAR(128) NOT NULL,
				trigger_source VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT,
				input JSONB,
				output JSONB,
				error TEXT,
				logs JSONB NOT NULL DEFAULT '[]'
			);

			CREATE INDEX idx_executions_slug_started ON executions(workflow_slug, started_at DESC);

			CREATE TABLE workflow_jobs (
				job_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_slug VARCHAR(128) NOT NULL,
				status VARCHAR(50) NOT NULL,
				scheduled_for TIMESTAMP WITH TIME ZONE NOT NULL,
				input JSONB,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				last_error TEXT,
				last_execution_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_jobs_due ON workflow_jobs(status, scheduled_for);

			CREATE TABLE dead_letters (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_slug VARCHAR(128) NOT NULL,
				execution_id VARCHAR(255),
				source_type VARCHAR(50) NOT NULL,
				source_identifier VARCHAR(255) NOT NULL DEFAULT '',
				correlation_id VARCHAR(255),
				payload JSONB,
				error TEXT NOT NULL,
				failed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_dead_letters_failed_at ON dead_letters(failed_at DESC);
		`,
		3: `
			-- Document store backing the mongodb node
			CREATE TABLE documents (
				collection VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				body JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (collection, id)
			);

			CREATE INDEX idx_documents_body ON documents USING GIN (body jsonb_path_ops);
		`,
	}
}
