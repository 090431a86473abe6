package buildkite

import "time"

const buildJobsQuery = `query BuildJobs($slug: ID!, $branch: [String!], $commit: [String!]) {
  pipeline(slug: $slug) {
    builds(branch: $branch, commit: $commit) {
      edges {
        node {
          number
          jobs(first: 500) {
            edges {
              node {
                ... on JobTypeCommand {
                  uuid
                  label
                  passed
                  state
                  url
                  build { commit }
                  startedAt
                  finishedAt
                  events(last: 50) {
                    edges { node { ... on JobEventRetried { retriedInJob { uuid } } } }
                  }
                  artifacts(first: 100) {
                    edges { node { downloadURL path } }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

const prBuildsQuery = `query PRBuilds($slug: ID!) {
  pipeline(slug: $slug) {
    builds(first: 500) {
      edges {
        node {
          commit
          createdAt
          createdBy {
            ... on User { name }
            ... on UnregisteredUser { name }
          }
          state
          url
          startedAt
          finishedAt
          pullRequest { id }
        }
      }
    }
  }
}`

// buildsData is the data member of a builds query.
type buildsData struct {
	Pipeline *struct {
		Builds struct {
			Edges []struct {
				Node *BuildNode `json:"node"`
			} `json:"edges"`
		} `json:"builds"`
	} `json:"pipeline"`
}

// BuildNode is one build of a pipeline.
type BuildNode struct {
	Number int `json:"number"`
	Jobs   struct {
		Edges []struct {
			Node *Job `json:"node"`
		} `json:"edges"`
	} `json:"jobs"`
}

// Job is a command job of a build. Non-command jobs decode with an empty UUID.
type Job struct {
	UUID   string `json:"uuid"`
	Label  string `json:"label"`
	Passed bool   `json:"passed"`
	State  string `json:"state"`
	URL    string `json:"url"`
	Build  struct {
		Commit string `json:"commit"`
	} `json:"build"`
	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Events     struct {
		Edges []struct {
			Node struct {
				RetriedInJob *struct {
					UUID string `json:"uuid"`
				} `json:"retriedInJob"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"events"`
	Artifacts struct {
		Edges []struct {
			Node ArtifactNode `json:"node"`
		} `json:"edges"`
	} `json:"artifacts"`
}

// ArtifactNode is an uploaded artifact of a job.
type ArtifactNode struct {
	DownloadURL string `json:"downloadURL"`
	Path        string `json:"path"`
}

// Retried reports whether the job was superseded by a retry.
func (j *Job) Retried() bool {
	for _, e := range j.Events.Edges {
		if e.Node.RetriedInJob != nil {
			return true
		}
	}
	return false
}

// prBuildsData is the data member of the PR builds query.
type prBuildsData struct {
	Pipeline *struct {
		Builds struct {
			Edges []struct {
				Node *PRBuildNode `json:"node"`
			} `json:"edges"`
		} `json:"builds"`
	} `json:"pipeline"`
}

// PRBuildNode is one build of the PR pipeline.
type PRBuildNode struct {
	Commit    string `json:"commit"`
	CreatedBy *struct {
		Name string `json:"name"`
	} `json:"createdBy"`
	State       string     `json:"state"`
	URL         string     `json:"url"`
	CreatedAt   *time.Time `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt"`
	PullRequest *struct {
		ID string `json:"id"`
	} `json:"pullRequest"`
}
