package cli

func regCommands() {
	//Archive
	inspectCmd.AddCommand(inspect_lastCmd)
	inspectCmd.AddCommand(inspect_txCmd)

	//Root
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(inspectCmd)
}
