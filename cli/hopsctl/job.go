package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hostops/hops/cli"
	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/hopsclient"
)

var byFlag = cli.Flag{
	Name:  "by",
	Usage: "Operator name, default to the configured user",
}

func by(v cli.Values) string {
	if b := v.GetString("by"); b != "" {
		return b
	}
	return cfg.User
}

var jobCmd = cli.Command{
	Name:    "job",
	Aliases: []string{"jobs"},
	Short:   "Manage hops jobs",
}

func job() *cobra.Command {
	return cli.NewCommand(jobCmd, nil, []*cobra.Command{
		cli.NewListCommand(jobListCmd, jobListRun, nil),
		cli.NewCommand(jobShowCmd, jobShowRun, nil, cli.CommandWithoutExtraFlags),
		cli.NewGetCommand(jobSubmitCmd, jobSubmitRun, nil),
		cli.NewListCommand(jobStepsCmd, jobStepsRun, nil),
		cli.NewListCommand(jobEventsCmd, jobEventsRun, nil),
		cli.NewGetCommand(jobApproveCmd, jobActionRun(hopsclient.Interface.JobApprove), nil),
		cli.NewGetCommand(jobPauseCmd, jobActionRun(hopsclient.Interface.JobPause), nil),
		cli.NewGetCommand(jobResumeCmd, jobActionRun(hopsclient.Interface.JobResume), nil),
		cli.NewGetCommand(jobCancelCmd, jobCancelRun, nil),
	})
}

var jobListCmd = cli.Command{
	Name:  "list",
	Short: "List jobs, newest first",
	Flags: []cli.Flag{
		{Name: "limit", Default: "50", Usage: "Max number of jobs"},
		{Name: "status", Type: cli.FlagSlice, Usage: "Only display jobs with the given statuses"},
	},
}

func jobListRun(v cli.Values) (cli.ListResult, error) {
	limit, err := v.GetInt("limit")
	if err != nil {
		return nil, err
	}
	var statuses []sdk.JobStatus
	for _, s := range v.GetStringSlice("status") {
		statuses = append(statuses, sdk.JobStatus(s))
	}
	jobs, err := client.JobList(context.Background(), limit, statuses...)
	if err != nil {
		return nil, err
	}
	return cli.AsListResult(jobs), nil
}

var jobShowCmd = cli.Command{
	Name:  "show",
	Short: "Show a job with its steps and its latest events",
	Args:  []cli.Arg{{Name: "id"}},
}

func jobShowRun(v cli.Values) error {
	d, err := client.JobGet(context.Background(), v.GetString("id"))
	if err != nil {
		return err
	}
	j := d.Job
	fmt.Printf("%s (%s)\n", j.Name, j.ID)
	fmt.Printf("Type:     %s on %d %s(s)\n", j.Type, len(j.TargetIDs), j.TargetType)
	fmt.Printf("Status:   %s, %d%%\n", cli.JobStatusColor(j.Status), j.Progress)
	fmt.Printf("Created:  %s by %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"), j.CreatedBy)
	if j.Policy.RequireApproval {
		approval := "waiting"
		if j.ApprovedBy != nil {
			approval = "by " + *j.ApprovedBy
		}
		fmt.Printf("Approval: %s\n", approval)
	}

	if len(d.Steps) > 0 {
		fmt.Println()
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "Target", "Status", "Attempts", "Output"})
		for _, s := range d.Steps {
			output := s.Output
			if s.Error != "" {
				output = s.Error
			}
			table.Append([]string{strconv.Itoa(s.Sequence), s.TargetID, string(s.Status), strconv.Itoa(s.Attempts), output})
		}
		table.Render()
	}

	if len(d.Events) > 0 {
		fmt.Println()
		for i := len(d.Events) - 1; i >= 0; i-- {
			e := d.Events[i]
			fmt.Printf("%s [%s] %s\n", e.Timestamp.Format("15:04:05"), cli.EventLevelColor(e.Level), e.Message)
		}
	}
	return nil
}

var jobSubmitCmd = cli.Command{
	Name:  "submit",
	Short: "Submit a new job",
	Example: `hopsctl job submit --type maintenance_mode --target-type host --targets esxi-1,esxi-2 --allow-vm-shutdown --vm-limit 5
hopsctl job submit --type firmware_update --target-type server --targets srv-1 --require-approval`,
	Flags: []cli.Flag{
		{Name: "type", Usage: "Job type: firmware_update, maintenance_mode, drs_evacuation, power_cycle or inventory_sync", IsValid: isJobType},
		{Name: "target-type", Usage: "Target type: host, server, cluster or vcenter"},
		{Name: "targets", Type: cli.FlagSlice, Usage: "Target ids, in execution order"},
		{Name: "name", Usage: "Job name"},
		{Name: "description", Usage: "Job description"},
		{Name: "site", Usage: "Site id"},
		{Name: "priority", Default: "0", Usage: "Higher priorities start first"},
		{Name: "allow-vm-shutdown", Type: cli.FlagBool, Usage: "Allow virtual machines to be shut down"},
		{Name: "allow-hard-poweroff", Type: cli.FlagBool, Usage: "Allow a hard power off when a graceful shutdown is not supported"},
		{Name: "vm-limit", Default: "0", Usage: "Max number of virtual machines on a target, 0 for no limit"},
		{Name: "shutdown-timeout", Default: "0", Usage: "Graceful shutdown timeout, in seconds"},
		{Name: "tag-filters", Type: cli.FlagSlice, Usage: "Only run on targets with one of these tags"},
		{Name: "folder-filters", Type: cli.FlagSlice, Usage: "Only run on targets in one of these folders"},
		{Name: "abort-on-error", Type: cli.FlagBool, Usage: "Fail the job on the first failed step"},
		{Name: "require-approval", Type: cli.FlagBool, Usage: "Wait for an approval before starting"},
		byFlag,
	},
}

func isJobType(s string) bool {
	_, ok := sdk.JobTypeSpecs[sdk.JobType(s)]
	return ok
}

func jobSubmitRun(v cli.Values) (cli.GetResult, error) {
	sub, err := submissionFromValues(v)
	if err != nil {
		return nil, err
	}
	return client.JobSubmit(context.Background(), sub)
}

func submissionFromValues(v cli.Values) (sdk.JobSubmission, error) {
	priority, err := v.GetInt("priority")
	if err != nil {
		return sdk.JobSubmission{}, err
	}
	vmLimit, err := v.GetInt("vm-limit")
	if err != nil {
		return sdk.JobSubmission{}, err
	}
	timeout, err := v.GetInt("shutdown-timeout")
	if err != nil {
		return sdk.JobSubmission{}, err
	}

	sub := sdk.JobSubmission{
		Name:        v.GetString("name"),
		Description: v.GetString("description"),
		SiteID:      v.GetString("site"),
		Type:        sdk.JobType(v.GetString("type")),
		Priority:    priority,
		TargetIDs:   v.GetStringSlice("targets"),
		TargetType:  sdk.TargetType(v.GetString("target-type")),
		CreatedBy:   by(v),
		Policy: sdk.JobPolicy{
			AllowVMShutdown:        v.GetBool("allow-vm-shutdown"),
			AllowHardPoweroff:      v.GetBool("allow-hard-poweroff"),
			ShutdownTimeoutSeconds: timeout,
			TagFilters:             v.GetStringSlice("tag-filters"),
			FolderFilters:          v.GetStringSlice("folder-filters"),
			AbortOnError:           v.GetBool("abort-on-error"),
			RequireApproval:        v.GetBool("require-approval"),
		},
	}
	if vmLimit > 0 {
		sub.Policy.VMLimit = &vmLimit
	}
	return sub, sub.IsValid()
}

var jobStepsCmd = cli.Command{
	Name:  "steps",
	Short: "List the steps of a job",
	Args:  []cli.Arg{{Name: "id"}},
}

func jobStepsRun(v cli.Values) (cli.ListResult, error) {
	steps, err := client.JobSteps(context.Background(), v.GetString("id"))
	if err != nil {
		return nil, err
	}
	return cli.AsListResult(steps), nil
}

var jobEventsCmd = cli.Command{
	Name:  "events",
	Short: "List the events of a job, newest first",
	Args:  []cli.Arg{{Name: "id"}},
	Flags: []cli.Flag{
		{Name: "limit", Default: "50", Usage: "Max number of events"},
	},
}

func jobEventsRun(v cli.Values) (cli.ListResult, error) {
	limit, err := v.GetInt("limit")
	if err != nil {
		return nil, err
	}
	events, err := client.JobEvents(context.Background(), v.GetString("id"), limit)
	if err != nil {
		return nil, err
	}
	return cli.AsListResult(events), nil
}

var (
	jobApproveCmd = cli.Command{
		Name:  "approve",
		Short: "Approve a job waiting for an approval",
		Args:  []cli.Arg{{Name: "id"}},
		Flags: []cli.Flag{byFlag},
	}
	jobPauseCmd = cli.Command{
		Name:  "pause",
		Short: "Pause a running job, the running step goes on",
		Args:  []cli.Arg{{Name: "id"}},
		Flags: []cli.Flag{byFlag},
	}
	jobResumeCmd = cli.Command{
		Name:  "resume",
		Short: "Resume a paused job",
		Args:  []cli.Arg{{Name: "id"}},
		Flags: []cli.Flag{byFlag},
	}
	jobCancelCmd = cli.Command{
		Name:  "cancel",
		Short: "Cancel a job",
		Args:  []cli.Arg{{Name: "id"}},
		Flags: []cli.Flag{byFlag, {Name: "force", Type: cli.FlagBool, Usage: "Do not ask for a confirmation"}},
	}
)

// jobActionRun takes a method expression, the client being created in PersistentPreRun.
func jobActionRun(action func(hopsclient.Interface, context.Context, string, string) (*sdk.Job, error)) cli.RunGetFunc {
	return func(v cli.Values) (cli.GetResult, error) {
		return action(client, context.Background(), v.GetString("id"), by(v))
	}
}

func jobCancelRun(v cli.Values) (cli.GetResult, error) {
	if !v.GetBool("force") && !cli.AskConfirm(fmt.Sprintf("Are you sure to cancel job %s?", v.GetString("id"))) {
		return nil, fmt.Errorf("cancellation aborted")
	}
	return client.JobCancel(context.Background(), v.GetString("id"), by(v))
}
