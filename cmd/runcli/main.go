package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"

	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/httpjson"
)

// runcli submits a local source file to a running judge's synchronous
// execute endpoint and prints the outcome.
func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "judge service base URL")
		file     = flag.String("file", "", "source file to run")
		lang     = flag.String("lang", "", "language id (PYTHON, JAVA, CPP, GO, ...)")
		input    = flag.String("input", "", "stdin for the program")
		expected = flag.String("expected", "", "expected output; when set the run is judged")
		tests    = flag.String("tests", "", "JSON file with [{input, output}] test cases")
	)
	flag.Parse()

	if *file == "" || *lang == "" {
		flag.Usage()
		os.Exit(2)
	}

	code, err := os.ReadFile(*file)
	if err != nil {
		fatal("read source file: %v", err)
	}

	req := api.ExecuteRequest{Code: string(code), Language: *lang}
	switch {
	case *tests != "":
		body, err := os.ReadFile(*tests)
		if err != nil {
			fatal("read tests file: %v", err)
		}
		if err := json.Unmarshal(body, &req.TestCases); err != nil {
			fatal("parse tests file: %v", err)
		}
	case *expected != "":
		req.TestCases = []api.TestCase{{Input: *input, Output: *expected}}
	default:
		req.Input = *input
	}

	env := post(*server+"/api/execute", req)

	if len(req.TestCases) == 0 {
		var out api.RunOutput
		if err := json.Unmarshal(env.Data, &out); err != nil {
			fatal("decode response: %v", err)
		}
		printRunOutput(out)
		return
	}

	var result api.JudgeResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		fatal("decode response: %v", err)
	}
	printVerdict(result)
	if !result.Accepted() {
		os.Exit(1)
	}
}

func post(url string, req api.ExecuteRequest) httpjson.JsonResponseRaw {
	body, err := json.Marshal(req)
	if err != nil {
		fatal("encode request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fatal("call judge service: %v", err)
	}
	defer resp.Body.Close()

	var env httpjson.JsonResponseRaw
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		fatal("decode envelope: %v", err)
	}
	if env.Status != "success" {
		fatal("judge service: %s (%s)", env.ErrMsg, env.ErrCode)
	}
	return env
}

func printRunOutput(out api.RunOutput) {
	if out.Success {
		color.Green("run succeeded (%dms, %dMB)", out.Runtime, out.MemoryUsage)
		fmt.Println(out.Output)
		return
	}
	color.Red("run failed: %s", out.Error)
	if out.Output != "" {
		fmt.Println(out.Output)
	}
	os.Exit(1)
}

func printVerdict(result api.JudgeResult) {
	statusColor := color.New(color.FgHiRed, color.Bold)
	if result.Accepted() {
		statusColor = color.New(color.FgHiGreen, color.Bold)
	}
	statusColor.Println(result.Status)

	fmt.Printf("passed %d/%d, total %dms, peak %dMB\n",
		result.TestCasesPassed, result.TotalTestCases, result.TotalRuntime, result.MaxMemoryUsage)
	if result.ErrorMessage != "" {
		color.Red("%s", result.ErrorMessage)
	}

	for i, tc := range result.TestCaseResults {
		if tc.Passed {
			color.Green("  case %d: ok (%dms)", i+1, tc.Runtime)
			continue
		}
		color.Red("  case %d: failed", i+1)
		if tc.Error != "" {
			fmt.Printf("    error:    %s\n", tc.Error)
			continue
		}
		fmt.Printf("    expected: %s\n", tc.ExpectedOutput)
		fmt.Printf("    actual:   %s\n", tc.ActualOutput)
	}
}

func fatal(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}
