package repository

const (
	createJobsTableQuery = `CREATE TABLE IF NOT EXISTS transcript_jobs (
					job_id              VARCHAR(26) PRIMARY KEY,
					source_reference    TEXT        NOT NULL,
					requested_language  VARCHAR(8)  NOT NULL,
					requested_format    VARCHAR(8)  NOT NULL,
					stage               VARCHAR(16) NOT NULL,
					progress_percent    INTEGER     NOT NULL DEFAULT 0,
					message             TEXT        NOT NULL DEFAULT '',
					error_detail        TEXT        NOT NULL DEFAULT '',
					artifact_location   TEXT        NOT NULL DEFAULT '',
					title               TEXT        NOT NULL DEFAULT '',
					attempts            INTEGER     NOT NULL DEFAULT 0,
					cancel_requested    BOOLEAN     NOT NULL DEFAULT FALSE,
					media_location      TEXT        NOT NULL DEFAULT '',
					transcript_location TEXT        NOT NULL DEFAULT '',
					created_at          TIMESTAMPTZ NOT NULL,
					updated_at          TIMESTAMPTZ NOT NULL
				)`

	addJobsMessageColumnQuery = `ALTER TABLE transcript_jobs ADD COLUMN IF NOT EXISTS message TEXT NOT NULL DEFAULT ''`

	createJobsStageIndexQuery = `CREATE INDEX IF NOT EXISTS transcript_jobs_stage_idx ON transcript_jobs (stage, updated_at)`

	jobColumns = `job_id, source_reference, requested_language, requested_format, stage, progress_percent,
					message, error_detail, artifact_location, title, attempts, cancel_requested, media_location,
					transcript_location, created_at, updated_at`

	createJobQuery = `INSERT INTO transcript_jobs (` + jobColumns + `)
					VALUES (:job_id, :source_reference, :requested_language, :requested_format, :stage, :progress_percent,
					:message, :error_detail, :artifact_location, :title, :attempts, :cancel_requested, :media_location,
					:transcript_location, :created_at, :updated_at)`

	getJobByIDQuery = `SELECT ` + jobColumns + ` FROM transcript_jobs WHERE job_id = $1`

	getJobForUpdateQuery = `SELECT ` + jobColumns + ` FROM transcript_jobs WHERE job_id = $1 FOR UPDATE`

	updateJobQuery = `UPDATE transcript_jobs
									SET stage = :stage,
									    progress_percent = :progress_percent,
									    message = :message,
									    error_detail = :error_detail,
									    artifact_location = :artifact_location,
									    title = :title,
									    attempts = :attempts,
									    cancel_requested = :cancel_requested,
									    media_location = :media_location,
									    transcript_location = :transcript_location,
									    updated_at = :updated_at
									WHERE job_id = :job_id`

	getTotalJobsCountQuery = `SELECT COUNT(job_id) FROM transcript_jobs`

	getJobsQuery = `SELECT ` + jobColumns + ` FROM transcript_jobs
					ORDER BY created_at DESC, job_id DESC OFFSET $1 LIMIT $2`

	getUnfinishedJobsQuery = `SELECT ` + jobColumns + ` FROM transcript_jobs
					WHERE stage NOT IN ('done', 'failed') ORDER BY job_id`

	deleteFinishedJobsQuery = `DELETE FROM transcript_jobs
					WHERE stage IN ('done', 'failed') AND updated_at < $1 RETURNING ` + jobColumns
)
